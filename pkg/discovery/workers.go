package discovery

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// sendTargetsInitialCapacity mirrors the default SendTargets response
// buffer sizing in the original initiator: sized for 10 entries, grown
// once on overflow.
const sendTargetsInitialCapacity = 10

// Worker is one of the four method worker loops (§4.E). Workers are
// born stopped: NewWorker only constructs the descriptor, Start spawns
// the run loop, Stop tears it down. A Worker may be started and
// stopped repeatedly across its lifetime as Enable/Disable toggle it.
type Worker struct {
	Method Method
	Wake   chan struct{}

	registry *Registry
	store    Store
	isns     ISNSClient
	sendtgts SendTargetsClient
	barrier  *Barrier

	enabled func() bool

	// stSem serializes SendTargets RPCs across every discovery address
	// this worker probes, mirroring the per-HBA SendTargets semaphore.
	stSem *semaphore.Weighted

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	stopped chan struct{}

	isnsMu           sync.Mutex
	isnsRegistered   bool
	isnsInitiatorKey string
}

// NewWorker constructs a Worker for method m, stopped. enabled reports
// whether m is currently in the enabled bitmap; it is read fresh on
// every cycle.
func NewWorker(m Method, reg *Registry, store Store, isns ISNSClient, st SendTargetsClient, barrier *Barrier, enabled func() bool) *Worker {
	return &Worker{
		Method:   m,
		Wake:     make(chan struct{}, 1),
		registry: reg,
		store:    store,
		isns:     isns,
		sendtgts: st,
		barrier:  barrier,
		enabled:  enabled,
		stSem:    semaphore.NewWeighted(1),
	}
}

// Start spawns the worker's run loop if it is not already running.
// Calling Start on an already-running worker is a no-op.
func (w *Worker) Start() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return
	}
	w.stop = make(chan struct{})
	w.stopped = make(chan struct{})
	w.running = true
	go w.run(w.stop, w.stopped)
}

// run is the worker's `while wait(wake_or_stop) { body }` loop. It
// blocks until a wake or a stop signal; stop always wins ties by being
// checked first so shutdown is prompt.
func (w *Worker) run(stop, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stop:
			return
		default:
		}
		select {
		case <-stop:
			return
		case <-w.Wake:
			w.cycle()
		}
	}
}

// IsRunning reports whether the worker's loop is currently active.
func (w *Worker) IsRunning() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.running
}

// Stop signals a running worker to exit and blocks until its loop
// returns; stopping an already-stopped worker is a no-op. For the iSNS
// worker this also deregisters from the iSNS service.
func (w *Worker) Stop() {
	w.runMu.Lock()
	if !w.running {
		w.runMu.Unlock()
		return
	}
	stop, stopped := w.stop, w.stopped
	w.running = false
	w.runMu.Unlock()

	close(stop)
	<-stopped
	if w.Method == MethodISNS {
		w.deregisterISNS()
	}
}

func (w *Worker) cycle() {
	w.barrier.Start(w.Method)
	defer w.barrier.End(w.Method)

	if !w.enabled() {
		log.WithField("method", w.Method).Debug("discovery: method not enabled, skipping cycle")
		return
	}

	switch w.Method {
	case MethodStatic:
		w.runStatic()
	case MethodSendTargets:
		w.runSendTargets()
	case MethodISNS:
		w.runISNS()
	case MethodSLP:
		// stub: the barrier start/end above is the entire body.
	}
}

func (w *Worker) runStatic() {
	w.store.StaticAddrLock()
	defer w.store.StaticAddrUnlock()

	var cursor *string
	for {
		name, entry, ok := w.store.StaticAddrNext(cursor)
		if !ok {
			break
		}
		cursor = &name

		addr, err := NormalizeAddr(entry.InSize, entry.Bytes, entry.Port)
		if err != nil {
			log.WithField("target", name).Warn("discovery: static entry has invalid address, skipping")
			continue
		}
		if err := w.registry.Add(MethodStatic, addr, name, entry.TPGT, addr); err != nil {
			log.WithFields(log.Fields{"target": name, "addr": addr}).
				Warn("discovery: static add failed")
		}
	}
}

func (w *Worker) runSendTargets() {
	w.store.DiscAddrLock()
	defer w.store.DiscAddrUnlock()

	var cursor *int
	for {
		entry, ok := w.store.DiscAddrNext(cursor)
		if !ok {
			break
		}
		idx := 0
		if cursor != nil {
			idx = *cursor + 1
		}
		cursor = &idx

		addr, err := NormalizeAddr(entry.InSize, entry.Bytes, entry.Port)
		if err != nil {
			log.Warn("discovery: sendtargets entry has invalid address, skipping")
			continue
		}
		w.probeSendTargets(addr)
	}
}

func (w *Worker) probeSendTargets(addr Addr) {
	ctx := context.Background()
	if err := w.stSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer w.stSem.Release(1)

	if err := sendTargetsProbe(ctx, w.sendtgts, w.registry, addr); err != nil {
		log.WithField("addr", addr).Warn("discovery: " + err.Error())
	}
}

// sendTargetsProbe issues the SendTargets RPC against addr, retrying
// once with a grown buffer on overflow, and funnels every returned
// target through registry.Add. It is shared by the SendTargets
// worker's periodic sweep and the dispatcher's on-demand do_sendtgts
// control operation, which probe the same way but report failure
// differently: the worker logs and moves on, the dispatcher returns
// the error to its caller.
func sendTargetsProbe(ctx context.Context, client SendTargetsClient, reg *Registry, addr Addr) error {
	capacity := sendTargetsInitialCapacity
	results, total, err := client.Get(ctx, addr, capacity)
	if err != nil {
		return fmt.Errorf("sendtargets rpc failed: %w", err)
	}
	if total > capacity {
		capacity = total
		results, total, err = client.Get(ctx, addr, capacity)
		if err != nil {
			return fmt.Errorf("sendtargets retry rpc failed: %w", err)
		}
		if total > capacity {
			return fmt.Errorf("sendtargets overflow persists after retry")
		}
	}

	for _, r := range results {
		if err := reg.Add(MethodSendTargets, addr, r.TargetName, r.TPGT, r.TargetAddr); err != nil {
			log.WithFields(log.Fields{"target": r.TargetName, "addr": addr}).
				Warn("discovery: sendtargets add failed")
		}
	}
	return nil
}

func (w *Worker) runISNS() {
	name, ok := w.store.InitiatorNameGet()
	if !ok {
		log.Warn("discovery: isns worker running with no initiator name set")
		return
	}
	alias, _ := w.store.AliasNameGet()

	w.isnsMu.Lock()
	if !w.isnsRegistered {
		if err := w.isns.Reg(context.Background(), 0, name, alias, w.scnCallback); err != nil {
			w.isnsMu.Unlock()
			log.Warn("discovery: isns registration failed")
			return
		}
		w.isnsRegistered = true
		w.isnsInitiatorKey = name
	}
	w.isnsMu.Unlock()

	if err := isnsQueryAndAdd(context.Background(), w.isns, w.registry, name, alias); err != nil {
		log.Warn("discovery: " + err.Error())
	}
}

// isnsQueryAndAdd runs a full iSNS query for (name, alias) and funnels
// every returned portal group through registry.Add. It is shared by
// the iSNS worker's periodic sweep and the dispatcher's on-demand
// do_isns_query control operation.
func isnsQueryAndAdd(ctx context.Context, client ISNSClient, reg *Registry, name, alias string) error {
	groups, err := client.Query(ctx, 0, name, alias)
	if err != nil {
		return fmt.Errorf("isns query failed: %w", err)
	}
	for _, g := range groups {
		if err := reg.Add(MethodISNS, g.ServerAddr, g.TargetName, g.TPGT, g.TargetAddr); err != nil {
			log.WithField("target", g.TargetName).Warn("discovery: isns add failed")
		}
	}
	return nil
}

// scnCallback is the SCNCallback handed to the iSNS client at
// registration time; it delegates to the reaction path (§4.G).
func (w *Worker) scnCallback(scnType SCNType, sourceKey string) {
	HandleSCN(w.registry, w.isns, scnType, sourceKey)
}

// deregisterISNS deregisters from iSNS if currently registered; called
// when the worker is stopped (§4.E: "On worker stop, deregister").
func (w *Worker) deregisterISNS() {
	w.isnsMu.Lock()
	defer w.isnsMu.Unlock()
	if !w.isnsRegistered {
		return
	}
	if err := w.isns.Dereg(context.Background(), 0, w.isnsInitiatorKey); err != nil {
		log.Warn("discovery: isns deregistration failed")
		return
	}
	w.isnsRegistered = false
}
