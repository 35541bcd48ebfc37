package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// errBoom is a shared sentinel for tests that just need some non-nil
// error from a collaborator, without caring about its text.
var errBoom = errors.New("fake collaborator failure")

// fakeHandle is the opaque session/conn handle fakeTransport hands
// back, carrying enough identity for tests to assert on.
type fakeHandle struct {
	kind       string // "sess" or "conn"
	targetName string
}

// fakeTransport is a minimal, in-package TransportEngine double.
// Living in the discovery package itself (rather than reusing
// pkg/transport.Stub) avoids an import cycle, since pkg/transport
// imports this package.
type fakeTransport struct {
	mu sync.Mutex

	FailSessCreate  map[string]bool
	FailSessDestroy map[string]bool

	SetParamsCalls []SetRequest
	OnlineCalls    int
	destroyed      []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		FailSessCreate:  make(map[string]bool),
		FailSessDestroy: make(map[string]bool),
	}
}

func (t *fakeTransport) SetParams(req SetRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SetParamsCalls = append(t.SetParamsCalls, req)
	return nil
}

func (t *fakeTransport) SessCreate(method Method, discAddr Addr, targetName string, tpgt uint16, isid int) (interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailSessCreate[targetName] {
		return nil, fmt.Errorf("fake transport: sess_create refused for %q", targetName)
	}
	return &fakeHandle{kind: "sess", targetName: targetName}, nil
}

func (t *fakeTransport) ConnCreate(targetAddr Addr, session interface{}) (interface{}, error) {
	h, ok := session.(*fakeHandle)
	if !ok {
		return nil, fmt.Errorf("fake transport: conn_create given foreign handle")
	}
	return &fakeHandle{kind: "conn", targetName: h.targetName}, nil
}

func (t *fakeTransport) SessDestroy(session interface{}) error {
	h, ok := session.(*fakeHandle)
	if !ok {
		return fmt.Errorf("fake transport: sess_destroy given foreign handle")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailSessDestroy[h.targetName] {
		return fmt.Errorf("fake transport: sess_destroy refused for %q", h.targetName)
	}
	t.destroyed = append(t.destroyed, h.targetName)
	return nil
}

func (t *fakeTransport) SessOnline(session interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.OnlineCalls++
}

func (t *fakeTransport) destroyedTargets() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.destroyed))
	copy(out, t.destroyed)
	return out
}

// fakeSink is an in-package EventSink recorder, serving the same
// purpose as pkg/eventsink.Recorder without importing it (that
// package does not import discovery, so there's no cycle risk there,
// but keeping every test double local and uniform keeps the fakes
// easy to scan together).
type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (s *fakeSink) Publish(subclass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, subclass)
}

func (s *fakeSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func (s *fakeSink) Count(subclass string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == subclass {
			n++
		}
	}
	return n
}

// fakeISNS is an in-package ISNSClient double.
type fakeISNS struct {
	mu sync.Mutex

	QueryResult []PortalGroup
	QueryErr    error
	NodeResult  map[string][]PortalGroup
	RegErr      error

	registered bool
	cb         SCNCallback
}

func newFakeISNS() *fakeISNS {
	return &fakeISNS{NodeResult: make(map[string][]PortalGroup)}
}

func (f *fakeISNS) Query(ctx context.Context, isid uint64, name, alias string) ([]PortalGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.QueryResult, f.QueryErr
}

func (f *fakeISNS) QueryOneServer(ctx context.Context, server Addr, isid uint64, name, alias string) ([]PortalGroup, error) {
	return f.Query(ctx, isid, name, alias)
}

func (f *fakeISNS) QueryOneNode(ctx context.Context, sourceKey string, isid uint64, name string) ([]PortalGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NodeResult[sourceKey], nil
}

func (f *fakeISNS) Reg(ctx context.Context, isid uint64, name, alias string, cb SCNCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegErr != nil {
		return f.RegErr
	}
	f.registered = true
	f.cb = cb
	return nil
}

func (f *fakeISNS) Dereg(ctx context.Context, isid uint64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = false
	f.cb = nil
	return nil
}

func (f *fakeISNS) deliver(scnType SCNType, sourceKey string) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(scnType, sourceKey)
	}
}

func (f *fakeISNS) isRegistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

// fakeSendTargets is an in-package SendTargetsClient double that can
// script the overflow-retry-once sequence (§4.E).
type fakeSendTargets struct {
	mu sync.Mutex

	All   map[string][]SendTargetsResult
	Calls []int // capacities requested, in order, across all addresses
	Err   error

	// TotalSequence, when set for an address, is consumed one value per
	// call to that address (the last value repeats once exhausted) —
	// lets a test script a server whose reported total keeps growing
	// out from under the grow-and-retry sequence.
	TotalSequence map[string][]int
	callsPerAddr  map[string]int
}

func newFakeSendTargets() *fakeSendTargets {
	return &fakeSendTargets{
		All:           make(map[string][]SendTargetsResult),
		TotalSequence: make(map[string][]int),
		callsPerAddr:  make(map[string]int),
	}
}

func (f *fakeSendTargets) Get(ctx context.Context, addr Addr, in int) ([]SendTargetsResult, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, in)
	if f.Err != nil {
		return nil, 0, f.Err
	}
	all := f.All[addr.String()]
	total := len(all)
	if seq, ok := f.TotalSequence[addr.String()]; ok && len(seq) > 0 {
		idx := f.callsPerAddr[addr.String()]
		if idx >= len(seq) {
			idx = len(seq) - 1
		}
		total = seq[idx]
		f.callsPerAddr[addr.String()]++
	}
	if in >= total && in <= len(all) {
		return all[:in], total, nil
	}
	if in < len(all) {
		return all[:in], total, nil
	}
	return all, total, nil
}
