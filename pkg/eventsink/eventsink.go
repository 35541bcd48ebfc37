// Package eventsink implements discovery.EventSink: the outbound port
// the discovery barrier publishes start/end events through instead of
// calling the operating-system service bus directly (§9 design note).
package eventsink

import (
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
	log "github.com/sirupsen/logrus"
)

// vendor is the sysevent-style vendor string every published event
// carries, matching ESC_ISCSI's vendor prefix in the original.
const vendor = "SUNW:iscsi:discovery"

// Systemd publishes discovery events to the systemd journal, falling
// back to a logrus line when no journal socket is present (e.g. in a
// container without systemd, or under `go test`).
type Systemd struct{}

func NewSystemd() *Systemd { return &Systemd{} }

func (s *Systemd) Publish(subclass string) {
	if ok, _ := journal.StderrIsJournalStream(); ok {
		_ = journal.Send(vendor+" "+subclass, journal.PriInfo, map[string]string{
			"ISCSI_DISCOVERY_SUBCLASS": subclass,
		})
		return
	}
	if journal.Enabled() {
		_ = journal.Send(vendor+" "+subclass, journal.PriInfo, map[string]string{
			"ISCSI_DISCOVERY_SUBCLASS": subclass,
		})
		return
	}
	log.WithField("subclass", subclass).Info("discovery: event")
}

// Recorder is an in-memory EventSink for tests: it appends every
// published subclass to a slice under a mutex, the way the barrier's
// own tests need to assert on the exact start/end sequence emitted.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(subclass string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, subclass)
}

// Events returns a snapshot of every subclass published so far, in
// order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many times subclass has been published.
func (r *Recorder) Count(subclass string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == subclass {
			n++
		}
	}
	return n
}
