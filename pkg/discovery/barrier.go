package discovery

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// subclass names for the events a Barrier publishes, matching the
// ESC_ISCSI_* sysevent subclasses of the original initiator.
const (
	subclassStaticStart      = "STATIC_START"
	subclassStaticEnd        = "STATIC_END"
	subclassSendTargetsStart = "SEND_TARGETS_START"
	subclassSendTargetsEnd   = "SEND_TARGETS_END"
	subclassSLPStart         = "SLP_START"
	subclassSLPEnd           = "SLP_END"
	subclassISNSStart        = "ISNS_START"
	subclassISNSEnd          = "ISNS_END"
)

var startSubclass = map[Method]string{
	MethodStatic:      subclassStaticStart,
	MethodSendTargets: subclassSendTargetsStart,
	MethodSLP:         subclassSLPStart,
	MethodISNS:        subclassISNSStart,
}

var endSubclass = map[Method]string{
	MethodStatic:      subclassStaticEnd,
	MethodSendTargets: subclassSendTargetsEnd,
	MethodSLP:         subclassSLPEnd,
	MethodISNS:        subclassISNSEnd,
}

// pollDelay is the wait-loop granularity Poke uses while blocking for
// the barrier to complete, matching ISCSI_DISCOVERY_DELAY (1 second)
// in the original. It is a var, not a const, so tests can shrink it.
var pollDelay = time.Second

// Barrier tracks which discovery methods have emitted their terminal
// event in the current cycle (§4.D). An external readiness daemon
// blocks on the end events; missing one deadlocks boot, so every
// method — enabled or not, successful or not — must emit a matched
// start/end pair every cycle.
type Barrier struct {
	mu          sync.Mutex
	emittedEnds Method
	inProgress  bool

	sink  EventSink
	woken map[Method]chan struct{}
}

// NewBarrier constructs a Barrier publishing through sink. wake is the
// set of per-method wake channels the barrier pokes; workers receive
// their wake signal on these channels.
func NewBarrier(sink EventSink, wake map[Method]chan struct{}) *Barrier {
	return &Barrier{sink: sink, woken: wake}
}

// Start publishes the method's start event and marks a cycle in
// progress. It does not touch the emitted-ends bitset.
func (b *Barrier) Start(m Method) {
	b.mu.Lock()
	b.inProgress = true
	b.mu.Unlock()
	if sc, ok := startSubclass[m]; ok {
		b.sink.Publish(sc)
	}
}

// End sets the method's bit in the emitted-ends bitset and publishes
// the method's end event. Every call to Start on a cycle must be
// followed by exactly one call to End, on every exit path of the
// worker body — including disabled-method and error paths.
func (b *Barrier) End(m Method) {
	b.mu.Lock()
	b.emittedEnds |= m
	b.mu.Unlock()
	if sc, ok := endSubclass[m]; ok {
		b.sink.Publish(sc)
	}
}

// EmitPair is a convenience for paths that must synthesize a matched
// start/end pair without running the method's actual body — e.g. a
// disabled method being poked, or every method on a fatal Init
// failure.
func (b *Barrier) EmitPair(m Method) {
	b.Start(m)
	b.End(m)
}

// Poke clears the emitted-ends bitset, wakes the targeted method (or
// every method when m == MethodUnknown), and blocks until every
// targeted method's end event has been observed. Methods with no
// worker to wake (methods not in enabled, or with no registered wake
// channel) still get a synthesized start/end pair so the wait below
// can complete.
func (b *Barrier) Poke(m Method, enabled Method) {
	b.mu.Lock()
	b.inProgress = true
	b.emittedEnds = 0
	b.mu.Unlock()

	target := AllMethods
	if m != MethodUnknown {
		target = m
	}

	for _, method := range methods {
		if method&target == 0 {
			continue
		}
		if method&enabled != 0 {
			if ch, ok := b.woken[method]; ok {
				select {
				case ch <- struct{}{}:
				default:
					// worker already has a pending wake; its next
					// cycle will still emit start/end.
				}
				continue
			}
		}
		// Disabled, or no worker registered: synthesize the pair so
		// the wait loop below can still observe it.
		b.EmitPair(method)
	}

	for {
		b.mu.Lock()
		done := b.emittedEnds&target == target
		b.mu.Unlock()
		if done {
			break
		}
		time.Sleep(pollDelay)
	}

	b.mu.Lock()
	b.inProgress = false
	b.mu.Unlock()
	log.Debugf("discovery barrier: poke(%s) complete", m)
}

// InProgress reports whether a cycle is currently in flight.
func (b *Barrier) InProgress() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inProgress
}
