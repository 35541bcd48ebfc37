package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// dialTo returns an http.Client whose transport ignores the request's
// host and always dials srv, the same trick sockets.ConfigureTransport
// plays for a unix-socket proto: the client's "http://unix" + path URLs
// never carry a meaningful host.
func dialTo(srv *httptest.Server) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.Dial("tcp", srv.Listener.Addr().String())
			},
		},
	}
}

func TestParseHostSplitsProtoAndAddr(t *testing.T) {
	proto, addr, err := parseHost("unix:///var/run/discoveryd.sock")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proto != "unix" {
		t.Errorf("expected proto %q, got %q", "unix", proto)
	}
	if addr != "/var/run/discoveryd.sock" {
		t.Errorf("expected addr %q, got %q", "/var/run/discoveryd.sock", addr)
	}
}

func TestParseHostRejectsMissingScheme(t *testing.T) {
	if _, _, err := parseHost("/var/run/discoveryd.sock"); err == nil {
		t.Error("expected an error for a host with no scheme separator")
	}
}

func TestDoWrapsNonSuccessStatusInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad parameter: 'name' cannot be empty"))
	}))
	defer srv.Close()

	c := &client{http: dialTo(srv)}
	err := c.do(context.Background(), http.MethodPost, "/discovery/config_one", nil, nil)
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if !strings.Contains(err.Error(), "bad parameter") {
		t.Errorf("expected the error to carry the server's message, got %q", err.Error())
	}
}

func TestDoDecodesSuccessBodyIntoOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"enabled_methods":"static","in_progress":false}`))
	}))
	defer srv.Close()

	c := &client{http: dialTo(srv)}
	var out map[string]interface{}
	if err := c.do(context.Background(), http.MethodGet, "/discovery/props", nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["enabled_methods"] != "static" {
		t.Errorf("expected the decoded body to carry enabled_methods, got %v", out)
	}
}
