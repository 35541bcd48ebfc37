package discovery

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Core wires together the registry, barrier, dispatcher and workers
// into the single object a process entrypoint (cmd/discoveryd)
// constructs and drives. It is the Component I lifecycle boundary:
// Init brings everything up, Fini tears it down.
type Core struct {
	Registry   *Registry
	Barrier    *Barrier
	Dispatcher *Dispatcher
	Workers    map[Method]*Worker
}

// NewCore assembles a Core from the external collaborators this
// package consumes (§6): a persistent Store, a TransportEngine, an
// ISNSClient, a SendTargetsClient and an EventSink.
func NewCore(store Store, engine TransportEngine, isns ISNSClient, sendtgts SendTargetsClient, sink EventSink) *Core {
	reg := NewRegistry(store, engine)

	workers := make(map[Method]*Worker, len(methods))
	wakeChans := make(map[Method]chan struct{}, len(methods))
	barrier := NewBarrier(sink, wakeChans)

	var dispatcher *Dispatcher
	for _, m := range methods {
		mm := m
		enabledFn := func() bool {
			return dispatcher != nil && dispatcher.EnabledMask()&mm != 0
		}
		w := NewWorker(mm, reg, store, isns, sendtgts, barrier, enabledFn)
		workers[mm] = w
		wakeChans[mm] = w.Wake
	}

	dispatcher = NewDispatcher(reg, store, barrier, workers, isns, sendtgts)

	return &Core{Registry: reg, Barrier: barrier, Dispatcher: dispatcher, Workers: workers}
}

// Init runs the dispatcher's init path: load the store, bootstrap
// identity, apply param overrides, and reconcile the enabled bitmap
// against the store's persisted setting, starting the workers of the
// enabled methods.
func (c *Core) Init(ctx context.Context, restart bool) error {
	log.WithField("restart", restart).Info("discovery: initializing")
	return c.Dispatcher.Init(ctx, restart)
}

// Fini disables every method (tearing down their sessions) and stops
// every worker goroutine. Errors from individual disables are logged
// but do not prevent the remaining workers from being stopped.
func (c *Core) Fini() error {
	log.Info("discovery: shutting down")
	err := c.Dispatcher.Disable(AllMethods)
	for _, w := range c.Workers {
		w.Stop()
	}
	return err
}
