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

// Package discaddr is the Control API surface over the persistent
// SendTargets/iSNS discovery-address list the SendTargets worker
// (§4.E) consumes.
package discaddr

import (
	"encoding/json"
	"net/http"

	"golang.org/x/net/context"

	"github.com/gostor/iscsid/pkg/apiserver/httputils"
	"github.com/gostor/iscsid/pkg/apiserver/router"
	"github.com/gostor/iscsid/pkg/discovery"
)

// Adder is satisfied by any Store implementation that supports
// appending discovery-address entries.
type Adder interface {
	AddDiscAddr(e discovery.DiscAddrEntry) error
}

type discAddrRouter struct {
	store  Adder
	routes []router.Route
}

// NewRouter initializes a new discovery-address-list router bound to store.
func NewRouter(store Adder) router.Router {
	r := &discAddrRouter{store: store}
	r.initRoutes()
	return r
}

func (r *discAddrRouter) Routes() []router.Route {
	return r.routes
}

func (r *discAddrRouter) initRoutes() {
	r.routes = []router.Route{
		router.NewPostRoute("/discaddr/create", r.postCreate),
	}
}

type createRequest struct {
	InSize int    `json:"insize"`
	Bytes  []byte `json:"bytes"`
	Port   uint16 `json:"port"`
	TPGT   uint16 `json:"tpgt"`
}

func (r *discAddrRouter) postCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body createRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	entry := discovery.DiscAddrEntry{InSize: body.InSize, Bytes: body.Bytes, Port: body.Port, TPGT: body.TPGT}
	if err := r.store.AddDiscAddr(entry); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}
