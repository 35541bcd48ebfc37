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

// Package discovery is the Control API surface over the discovery
// core (§4.K): init/fini, props, enable/disable, poke, config_one and
// config_all, each a thin HTTP translation of a Dispatcher call.
package discovery

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/net/context"

	"github.com/gostor/iscsid/pkg/apiserver/httputils"
	"github.com/gostor/iscsid/pkg/apiserver/router"
	"github.com/gostor/iscsid/pkg/discovery"
)

// discoveryRouter is a router over the discovery core's Control API.
type discoveryRouter struct {
	core   *discovery.Core
	routes []router.Route
}

// NewRouter initializes a new discovery router bound to core.
func NewRouter(core *discovery.Core) router.Router {
	r := &discoveryRouter{core: core}
	r.initRoutes()
	return r
}

func (r *discoveryRouter) Routes() []router.Route {
	return r.routes
}

func (r *discoveryRouter) initRoutes() {
	r.routes = []router.Route{
		router.NewGetRoute("/discovery/props", r.getProps),
		router.NewGetRoute("/discovery/sessions", r.getSessions),
		router.NewPostRoute("/discovery/init", r.postInit),
		router.NewPostRoute("/discovery/fini", r.postFini),
		router.NewPostRoute("/discovery/enable", r.postEnable),
		router.NewPostRoute("/discovery/disable", r.postDisable),
		router.NewPostRoute("/discovery/poke", r.postPoke),
		router.NewPostRoute("/discovery/config_one", r.postConfigOne),
		router.NewPostRoute("/discovery/config_all", r.postConfigAll),
		router.NewPostRoute("/discovery/sendtgts", r.postSendTargets),
		router.NewPostRoute("/discovery/isns_query", r.postISNSQuery),
	}
}

type propsResponse struct {
	EnabledMethods string `json:"enabled_methods"`
	InProgress     bool   `json:"in_progress"`
}

func (r *discoveryRouter) getProps(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, propsResponse{
		EnabledMethods: r.core.Dispatcher.EnabledMask().String(),
		InProgress:     r.core.Barrier.InProgress(),
	})
}

type sessionResponse struct {
	Key          string `json:"key"`
	TargetAddr   string `json:"target_addr"`
	DiscoveredBy string `json:"discovered_by"`
}

func (r *discoveryRouter) getSessions(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	sessions := r.core.Registry.Sessions()
	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{
			Key:          s.Key.String(),
			TargetAddr:   s.TargetAddr.String(),
			DiscoveredBy: s.DiscoveredBy.String(),
		})
	}
	return httputils.WriteJSON(w, http.StatusOK, resp)
}

type initRequest struct {
	Restart bool `json:"restart"`
}

func (r *discoveryRouter) postInit(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body initRequest
	if err := decodeOptional(req, &body); err != nil {
		return err
	}
	if err := r.core.Init(ctx, body.Restart); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

func (r *discoveryRouter) postFini(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := r.core.Fini(); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

type methodRequest struct {
	Methods []string `json:"methods"`
	Poke    bool     `json:"poke"`
}

func (r *discoveryRouter) postEnable(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body methodRequest
	if err := decodeOptional(req, &body); err != nil {
		return err
	}
	mask, err := parseMethods(body.Methods)
	if err != nil {
		return err
	}
	if err := r.core.Dispatcher.Enable(mask, body.Poke); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

func (r *discoveryRouter) postDisable(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body methodRequest
	if err := decodeOptional(req, &body); err != nil {
		return err
	}
	mask, err := parseMethods(body.Methods)
	if err != nil {
		return err
	}
	if err := r.core.Dispatcher.Disable(mask); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

type pokeRequest struct {
	Method string `json:"method"`
}

// postPoke wakes the named method (or every method when "method" is
// omitted) and blocks until its barrier cycle completes, matching
// poke(method?) in the control surface.
func (r *discoveryRouter) postPoke(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body pokeRequest
	if err := decodeOptional(req, &body); err != nil {
		return err
	}
	mask := discovery.MethodUnknown
	if body.Method != "" {
		m, err := parseMethods([]string{body.Method})
		if err != nil {
			return err
		}
		mask = m
	}
	if err := r.core.Dispatcher.Poke(ctx, mask); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

type configOneRequest struct {
	Name    string `json:"name"`
	Protect bool   `json:"protect"`
}

func (r *discoveryRouter) postConfigOne(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body configOneRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if err := r.core.Dispatcher.ConfigOne(ctx, body.Name, body.Protect); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

type configAllRequest struct {
	Protect bool `json:"protect"`
}

func (r *discoveryRouter) postConfigAll(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body configAllRequest
	if err := decodeOptional(req, &body); err != nil {
		return err
	}
	if err := r.core.Dispatcher.ConfigAll(ctx, body.Protect); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

type sendTargetsRequest struct {
	InSize int    `json:"insize"`
	Bytes  []byte `json:"bytes"`
	Port   uint16 `json:"port"`
}

// postSendTargets issues an on-demand SendTargets probe against the
// given address, matching do_sendtgts(addr) in the control surface.
func (r *discoveryRouter) postSendTargets(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body sendTargetsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	addr, err := discovery.NormalizeAddr(body.InSize, body.Bytes, body.Port)
	if err != nil {
		return err
	}
	if err := r.core.Dispatcher.DoSendTargets(ctx, addr); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

// postISNSQuery issues an on-demand iSNS query for the current
// initiator identity, matching do_isns_query(void) in the control
// surface.
func (r *discoveryRouter) postISNSQuery(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := r.core.Dispatcher.DoISNSQuery(ctx); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}

// decodeOptional decodes a JSON body into v if one was sent; an empty
// body (e.g. a bare `enable` with no flags) is not an error.
func decodeOptional(req *http.Request, v interface{}) error {
	if req.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(req.Body).Decode(v)
}

func parseMethods(names []string) (discovery.Method, error) {
	if len(names) == 0 {
		return discovery.AllMethods, nil
	}
	var mask discovery.Method
	for _, n := range names {
		switch n {
		case "static":
			mask |= discovery.MethodStatic
		case "sendtargets":
			mask |= discovery.MethodSendTargets
		case "slp":
			mask |= discovery.MethodSLP
		case "isns":
			mask |= discovery.MethodISNS
		default:
			return 0, fmt.Errorf("bad parameter: unknown discovery method %q", n)
		}
	}
	return mask, nil
}
