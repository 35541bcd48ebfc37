// Package sendtargets provides a scriptable discovery.SendTargetsClient,
// standing in for the SendTargets text-negotiation RPC SPEC_FULL.md's
// non-goals exclude from this core.
package sendtargets

import (
	"context"
	"sync"

	"github.com/gostor/iscsid/pkg/discovery"
)

// Stub is a discovery.SendTargetsClient driven entirely by
// pre-programmed responses, keyed by discovery address string. It
// exists to exercise the worker's grow-buffer-and-retry-once overflow
// path (§4.E) without a real server.
type Stub struct {
	mu sync.Mutex

	// Responses maps an address's String() to the full result set a
	// real server would hold for it, regardless of requested capacity.
	Responses map[string][]discovery.SendTargetsResult
	Err       map[string]error

	Calls []Call
}

// Call records one Get invocation, for assertions about the
// grow-and-retry sequence.
type Call struct {
	Addr string
	In   int
}

func NewStub() *Stub {
	return &Stub{
		Responses: make(map[string][]discovery.SendTargetsResult),
		Err:       make(map[string]error),
	}
}

func (s *Stub) Get(ctx context.Context, addr discovery.Addr, in int) ([]discovery.SendTargetsResult, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addr.String()
	s.Calls = append(s.Calls, Call{Addr: key, In: in})

	if err := s.Err[key]; err != nil {
		return nil, 0, err
	}

	all := s.Responses[key]
	total := len(all)
	if in >= total {
		return all, total, nil
	}
	return all[:in], total, nil
}
