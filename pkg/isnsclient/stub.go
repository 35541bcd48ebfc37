// Package isnsclient provides a scriptable discovery.ISNSClient,
// standing in for the iSNS wire protocol SPEC_FULL.md's non-goals
// exclude from this core.
package isnsclient

import (
	"context"
	"sync"

	"github.com/gostor/iscsid/pkg/discovery"
)

// Stub is a discovery.ISNSClient a test can drive directly: set
// QueryResult/NodeResult up front, then call Deliver to simulate an
// SCN arriving on the registered callback.
type Stub struct {
	mu sync.Mutex

	QueryResult    []discovery.PortalGroup
	QueryErr       error
	NodeResult     map[string][]discovery.PortalGroup
	RegErr         error
	DeregErr       error

	registered bool
	cb         discovery.SCNCallback
}

func NewStub() *Stub {
	return &Stub{NodeResult: make(map[string][]discovery.PortalGroup)}
}

func (s *Stub) Query(ctx context.Context, isid uint64, name, alias string) ([]discovery.PortalGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QueryResult, s.QueryErr
}

func (s *Stub) QueryOneServer(ctx context.Context, server discovery.Addr, isid uint64, name, alias string) ([]discovery.PortalGroup, error) {
	return s.Query(ctx, isid, name, alias)
}

func (s *Stub) QueryOneNode(ctx context.Context, sourceKey string, isid uint64, name string) ([]discovery.PortalGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.NodeResult[sourceKey], nil
}

func (s *Stub) Reg(ctx context.Context, isid uint64, name, alias string, cb discovery.SCNCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RegErr != nil {
		return s.RegErr
	}
	s.registered = true
	s.cb = cb
	return nil
}

func (s *Stub) Dereg(ctx context.Context, isid uint64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeregErr != nil {
		return s.DeregErr
	}
	s.registered = false
	s.cb = nil
	return nil
}

// Deliver invokes the registered SCN callback, simulating an upcall
// from the iSNS server. It is a no-op if nothing is registered.
func (s *Stub) Deliver(scnType discovery.SCNType, sourceKey string) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(scnType, sourceKey)
	}
}

// Registered reports whether Reg has been called without a matching
// Dereg, for test assertions.
func (s *Stub) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}
