/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docker/go-connections/sockets"
)

// client is a minimal HTTP client for the discovery daemon's Control
// API, grounded on pkg/api/client's proto/addr parsing and
// basePath-prefixed request shape. It configures its transport for
// whichever proto the PROTO://ADDR host names (e.g. unix or tcp),
// matching the protos the daemon's API server can listen on.
type client struct {
	addr string
	http *http.Client
}

func newClient(host string) (*client, error) {
	proto, addr, err := parseHost(host)
	if err != nil {
		return nil, err
	}
	tr := &http.Transport{}
	if err := sockets.ConfigureTransport(tr, proto, addr); err != nil {
		return nil, err
	}
	return &client{addr: addr, http: &http.Client{Transport: tr}}, nil
}

func parseHost(host string) (string, string, error) {
	parts := strings.SplitN(host, "://", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("unable to parse daemon host %q", host)
	}
	return parts[0], parts[1], nil
}

func (c *client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discoveryd: %s %s: %s", method, path, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) getProps(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/discovery/props", nil, &out)
	return out, err
}

func (c *client) getSessions(ctx context.Context) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/discovery/sessions", nil, &out)
	return out, err
}

func (c *client) init(ctx context.Context, restart bool) error {
	return c.do(ctx, http.MethodPost, "/discovery/init", map[string]bool{"restart": restart}, nil)
}

func (c *client) fini(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/discovery/fini", nil, nil)
}

func (c *client) enable(ctx context.Context, methods []string, poke bool) error {
	return c.do(ctx, http.MethodPost, "/discovery/enable", map[string]interface{}{"methods": methods, "poke": poke}, nil)
}

func (c *client) disable(ctx context.Context, methods []string) error {
	return c.do(ctx, http.MethodPost, "/discovery/disable", map[string]interface{}{"methods": methods}, nil)
}

func (c *client) poke(ctx context.Context, method string) error {
	return c.do(ctx, http.MethodPost, "/discovery/poke", map[string]interface{}{"method": method}, nil)
}

func (c *client) sendTargets(ctx context.Context, insize int, raw []byte, port uint16) error {
	return c.do(ctx, http.MethodPost, "/discovery/sendtgts", map[string]interface{}{
		"insize": insize, "bytes": raw, "port": port,
	}, nil)
}

func (c *client) isnsQuery(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/discovery/isns_query", nil, nil)
}

func (c *client) configOne(ctx context.Context, name string, protect bool) error {
	return c.do(ctx, http.MethodPost, "/discovery/config_one", map[string]interface{}{"name": name, "protect": protect}, nil)
}

func (c *client) configAll(ctx context.Context, protect bool) error {
	return c.do(ctx, http.MethodPost, "/discovery/config_all", map[string]interface{}{"protect": protect}, nil)
}

func (c *client) addStatic(ctx context.Context, name string, insize int, raw []byte, port, tpgt uint16) error {
	return c.do(ctx, http.MethodPost, "/static/create", map[string]interface{}{
		"name": name, "insize": insize, "bytes": raw, "port": port, "tpgt": tpgt,
	}, nil)
}

func (c *client) addDiscAddr(ctx context.Context, insize int, raw []byte, port, tpgt uint16) error {
	return c.do(ctx, http.MethodPost, "/discaddr/create", map[string]interface{}{
		"insize": insize, "bytes": raw, "port": port, "tpgt": tpgt,
	}, nil)
}
