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

// Package static is the Control API surface over the persistent static
// target list the Static worker (§4.E) consumes.
package static

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/net/context"

	"github.com/gostor/iscsid/pkg/apiserver/httputils"
	"github.com/gostor/iscsid/pkg/apiserver/router"
	"github.com/gostor/iscsid/pkg/discovery"
)

// Adder is satisfied by any Store implementation that supports adding
// static target entries (pkg/store/filestore and pkg/store/sqlstore
// both do; the narrower discovery.Store interface the core consumes
// deliberately omits mutation so worker code cannot write to the
// store it only reads).
type Adder interface {
	AddStaticEntry(name string, e discovery.StaticEntry) error
}

type staticRouter struct {
	store  Adder
	routes []router.Route
}

// NewRouter initializes a new static-target-list router bound to store.
func NewRouter(store Adder) router.Router {
	r := &staticRouter{store: store}
	r.initRoutes()
	return r
}

func (r *staticRouter) Routes() []router.Route {
	return r.routes
}

func (r *staticRouter) initRoutes() {
	r.routes = []router.Route{
		router.NewPostRoute("/static/create", r.postStaticCreate),
	}
}

type createRequest struct {
	Name   string `json:"name"`
	InSize int    `json:"insize"`
	Bytes  []byte `json:"bytes"`
	Port   uint16 `json:"port"`
	TPGT   uint16 `json:"tpgt"`
}

func (r *staticRouter) postStaticCreate(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	var body createRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	if body.Name == "" {
		return fmt.Errorf("bad parameter: 'name' cannot be empty")
	}
	entry := discovery.StaticEntry{TargetName: body.Name, InSize: body.InSize, Bytes: body.Bytes, Port: body.Port, TPGT: body.TPGT}
	if err := r.store.AddStaticEntry(body.Name, entry); err != nil {
		return err
	}
	return httputils.WriteJSON(w, http.StatusOK, nil)
}
