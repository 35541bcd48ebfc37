// Package transport provides an in-memory discovery.TransportEngine.
// It stands in for the real iSCSI login PDU exchange and session I/O,
// which SPEC_FULL.md's non-goals explicitly exclude from this core;
// it is scriptable for tests the way mock/remote.go fakes out a
// backing store in the teacher repo.
package transport

import (
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/gostor/iscsid/pkg/discovery"
)

// SessionHandle is the opaque handle this package hands back to the
// registry in place of a real kernel session id.
type SessionHandle struct {
	ID         string
	Method     discovery.Method
	TargetName string
	ISID       int
}

// ConnHandle is the opaque handle for a connection within a session.
type ConnHandle struct {
	ID         string
	TargetAddr discovery.Addr
}

// Stub is a discovery.TransportEngine that records every call it
// receives instead of performing real I/O. FailSessCreate/FailConnCreate/
// FailSessDestroy, keyed by target name, let tests script failures at
// specific points the way §8's scenarios require.
type Stub struct {
	mu sync.Mutex

	FailSessCreate  map[string]bool
	FailConnCreate  map[string]bool
	FailSessDestroy map[string]bool

	SetParamsCalls  []discovery.SetRequest
	OnlineCalls     int
	sessions        map[string]*SessionHandle
}

// NewStub constructs an empty Stub.
func NewStub() *Stub {
	return &Stub{
		FailSessCreate:  make(map[string]bool),
		FailConnCreate:  make(map[string]bool),
		FailSessDestroy: make(map[string]bool),
		sessions:        make(map[string]*SessionHandle),
	}
}

func (s *Stub) SetParams(req discovery.SetRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetParamsCalls = append(s.SetParamsCalls, req)
	return nil
}

func (s *Stub) SessCreate(method discovery.Method, discAddr discovery.Addr, targetName string, tpgt uint16, isid int) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSessCreate[targetName] {
		return nil, fmt.Errorf("transport: sess_create refused for %q", targetName)
	}
	h := &SessionHandle{ID: uuid.NewV4().String(), Method: method, TargetName: targetName, ISID: isid}
	s.sessions[h.ID] = h
	return h, nil
}

func (s *Stub) ConnCreate(targetAddr discovery.Addr, session interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := session.(*SessionHandle)
	if !ok {
		return nil, fmt.Errorf("transport: conn_create given foreign session handle")
	}
	if s.FailConnCreate[h.TargetName] {
		return nil, fmt.Errorf("transport: conn_create refused for %q", h.TargetName)
	}
	return &ConnHandle{ID: uuid.NewV4().String(), TargetAddr: targetAddr}, nil
}

func (s *Stub) SessDestroy(session interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := session.(*SessionHandle)
	if !ok {
		return fmt.Errorf("transport: sess_destroy given foreign session handle")
	}
	if s.FailSessDestroy[h.TargetName] {
		return fmt.Errorf("transport: sess_destroy refused for %q (busy)", h.TargetName)
	}
	delete(s.sessions, h.ID)
	return nil
}

func (s *Stub) SessOnline(session interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OnlineCalls++
}

// Sessions returns a snapshot of the handles currently live, for test
// assertions.
func (s *Stub) Sessions() []SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionHandle, 0, len(s.sessions))
	for _, h := range s.sessions {
		out = append(out, *h)
	}
	return out
}
