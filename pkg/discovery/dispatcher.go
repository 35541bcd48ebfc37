package discovery

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// stormDelay is the minimum interval between two config-triggered
// pokes for the same debounce window, matching hba_config_storm_delay
// in the original initiator.
var stormDelay = 60 * time.Second

// Dispatcher is the discovery dispatcher (§4.F): the single entry
// point the control API and the CLI drive to bring workers up and
// down and to force a login pass.
type Dispatcher struct {
	registry *Registry
	store    Store
	barrier  *Barrier
	workers  map[Method]*Worker
	isns     ISNSClient
	sendtgts SendTargetsClient

	// configSem serializes init/enable/disable/config_* the way the
	// process-wide config semaphore does in the original.
	configSem *semaphore.Weighted

	mu          sync.Mutex
	enabledMask Method
	started     bool
	lastConfig  time.Time
}

// NewDispatcher wires a Dispatcher over an already-constructed
// Registry, Store, Barrier and the four Workers keyed by Method. isns
// and sendtgts back the on-demand do_isns_query/do_sendtgts control
// operations, the same collaborators the iSNS and SendTargets workers
// themselves hold.
func NewDispatcher(reg *Registry, store Store, barrier *Barrier, workers map[Method]*Worker, isns ISNSClient, sendtgts SendTargetsClient) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		store:     store,
		barrier:   barrier,
		workers:   workers,
		isns:      isns,
		sendtgts:  sendtgts,
		configSem: semaphore.NewWeighted(1),
	}
}

// Init loads persistent configuration, then reconciles the enabled
// bitmap with the store's discovery-method setting: on every call the
// methods in that setting are enabled (starting any of their workers
// not already running) and all other methods are disabled. Any failed step still
// leaves the barrier in a releasable state by synthesizing start/end
// pairs for every method.
func (d *Dispatcher) Init(ctx context.Context, restart bool) error {
	if err := d.configSem.Acquire(ctx, 1); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.init", err)
	}
	defer d.configSem.Release(1)

	ok, err := d.store.Init(restart)
	if err != nil || !ok {
		d.failAllMethods()
		return newErr(ErrStoreUnavailable, "dispatcher.init", err)
	}

	if err := d.initConfig(); err != nil {
		d.failAllMethods()
		return err
	}
	if err := d.initTargets(); err != nil {
		d.failAllMethods()
		return err
	}

	d.mu.Lock()
	d.started = true
	d.mu.Unlock()

	enabled := d.store.DiscMethGet()
	if err := d.enableLocked(enabled, false); err != nil {
		d.failAllMethods()
		return err
	}
	if err := d.disableLocked(AllMethods &^ enabled); err != nil {
		d.failAllMethods()
		return err
	}
	return nil
}

func (d *Dispatcher) failAllMethods() {
	for _, m := range methods {
		d.barrier.EmitPair(m)
	}
}

// initiatorParamRecordName is the store key convention used for the
// per-initiator (as opposed to per-target) parameter override record,
// matching the GetConfigSession("") fallback convention.
const initiatorParamRecordName = ""

// initConfig installs the initiator name, alias, and every overridden
// per-initiator login parameter (§4.H covers identity bootstrap; this
// pass additionally projects and applies any persisted param overrides).
func (d *Dispatcher) initConfig() error {
	if err := BootstrapIdentity(d.store); err != nil {
		return newErr(ErrStoreUnavailable, "dispatcher.init_config", err)
	}
	if rec, ok := d.store.ParamGet(initiatorParamRecordName); ok {
		if err := d.applyOverrides(rec); err != nil {
			return err
		}
	}
	return nil
}

// initTargets installs per-target parameter overrides without logging
// anything in — a pure configuration pass over the store's param
// records, skipping the reserved initiator-level record.
func (d *Dispatcher) initTargets() error {
	d.store.ParamLock()
	defer d.store.ParamUnlock()

	var cursor *string
	for {
		name, rec, ok := d.store.ParamNext(cursor)
		if !ok {
			break
		}
		cursor = &name
		if name == initiatorParamRecordName {
			continue
		}
		if err := d.applyOverrides(rec); err != nil {
			log.WithField("target", name).Warn("discovery: failed to apply target param overrides")
		}
	}
	return nil
}

// applyOverrides projects every ParamID set in rec.Bitmap and applies
// it to the transport engine.
func (d *Dispatcher) applyOverrides(rec ParamRecord) error {
	for id := ParamID(0); id < paramCount; id++ {
		if rec.Bitmap&(1<<uint(id)) == 0 {
			continue
		}
		req, err := ProjectParam(id, rec.Params)
		if err != nil {
			continue // unsettable catalogued params are silently skipped
		}
		if err := d.registry.SetParam(req); err != nil {
			return newErr(ErrRPCFailure, "dispatcher.apply_overrides", err)
		}
	}
	return nil
}

// Enable starts each given method's worker (Start is a no-op for a
// worker that is already running) and sets its bit in the enabled mask.
// If poke is set it then wakes each one and blocks on the barrier for
// that wake to complete; the wait happens after d.mu is released, since
// a woken worker reads the enabled mask through EnabledMask.
func (d *Dispatcher) Enable(mask Method, poke bool) error {
	d.mu.Lock()
	err := d.enableLocked(mask, false)
	enabled := d.enabledMask
	d.mu.Unlock()
	if err != nil {
		return err
	}
	if poke {
		for _, m := range methods {
			if mask&m != 0 {
				d.barrier.Poke(m, enabled)
			}
		}
	}
	return nil
}

func (d *Dispatcher) enableLocked(mask Method, poke bool) error {
	for _, m := range methods {
		if mask&m == 0 {
			continue
		}
		if w, ok := d.workers[m]; ok {
			w.Start()
		}
		d.enabledMask |= m
		if poke {
			d.barrier.Poke(m, d.enabledMask)
		}
	}
	return nil
}

// Disable stops each given method's worker after successfully tearing
// down its sessions. A del failure aborts the remaining methods in the
// mask and reports failure, but every attempted method still emits its
// start/end pair.
func (d *Dispatcher) Disable(mask Method) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disableLocked(mask)
}

func (d *Dispatcher) disableLocked(mask Method) error {
	for _, m := range methods {
		if mask&m == 0 {
			continue
		}
		d.barrier.Start(m)
		err := d.registry.Del("", m, nil)
		if err == nil {
			if w, ok := d.workers[m]; ok {
				w.Stop()
			}
			d.enabledMask &^= m
		}
		d.barrier.End(m)
		if err != nil {
			return newErr(ErrSessionBusy, "dispatcher.disable", err)
		}
	}
	return nil
}

func (d *Dispatcher) debounceExpired() bool {
	return time.Now().After(d.lastConfig.Add(stormDelay))
}

// ConfigOne forces a login attempt for a single target name. If no
// session matched and either protect is false or the debounce window
// has expired, it pokes every method and retries the login once.
// A name that still matches no session is reported as ErrSessionBusy.
// Callers must not hold configSem themselves; ConfigOne acquires it.
func (d *Dispatcher) ConfigOne(ctx context.Context, name string, protect bool) error {
	if err := d.configSem.Acquire(ctx, 1); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.config_one", err)
	}
	defer d.configSem.Release(1)

	matched := d.registry.LoginTargets(name, MethodUnknown, nil)
	if !matched && (!protect || d.debounceExpired()) {
		d.barrier.Poke(MethodUnknown, d.enabledMask)
		matched = d.registry.LoginTargets(name, MethodUnknown, nil)
		log.WithField("target", name).Debug("discovery: config_one retried after poke")
	}
	d.lastConfig = time.Now()
	if !matched {
		return newErr(ErrSessionBusy, "dispatcher.config_one", nil)
	}
	return nil
}

// ConfigAll forces a login attempt across every configured target,
// applying the same debounce semantics as ConfigOne before an
// unconditional login sweep.
func (d *Dispatcher) ConfigAll(ctx context.Context, protect bool) error {
	if err := d.configSem.Acquire(ctx, 1); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.config_all", err)
	}
	defer d.configSem.Release(1)

	if !protect || d.debounceExpired() {
		d.barrier.Poke(MethodUnknown, d.enabledMask)
	}
	d.lastConfig = time.Now()
	d.registry.LoginTargets("", MethodUnknown, nil)
	return nil
}

// EnabledMask reports the currently enabled method bitmap.
func (d *Dispatcher) EnabledMask() Method {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabledMask
}

// Poke wakes the given method (or every method when mask ==
// MethodUnknown) and blocks on the barrier until every woken method's
// end event has been observed, matching poke(method?) in the original
// control surface. It does not change the enabled bitmap.
func (d *Dispatcher) Poke(ctx context.Context, mask Method) error {
	if err := d.configSem.Acquire(ctx, 1); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.poke", err)
	}
	defer d.configSem.Release(1)

	d.mu.Lock()
	enabled := d.enabledMask
	d.mu.Unlock()

	d.barrier.Poke(mask, enabled)
	return nil
}

// DoSendTargets issues an on-demand SendTargets probe against addr,
// outside the periodic SendTargets worker's address list, matching
// do_sendtgts(addr) in the original control surface.
func (d *Dispatcher) DoSendTargets(ctx context.Context, addr Addr) error {
	if err := d.configSem.Acquire(ctx, 1); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.do_sendtargets", err)
	}
	defer d.configSem.Release(1)

	if err := sendTargetsProbe(ctx, d.sendtgts, d.registry, addr); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.do_sendtargets", err)
	}
	return nil
}

// DoISNSQuery issues an on-demand iSNS query for the current
// initiator identity, matching do_isns_query(void) in the original
// control surface.
func (d *Dispatcher) DoISNSQuery(ctx context.Context) error {
	if err := d.configSem.Acquire(ctx, 1); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.do_isns_query", err)
	}
	defer d.configSem.Release(1)

	name, ok := d.store.InitiatorNameGet()
	if !ok {
		return newErr(ErrStoreUnavailable, "dispatcher.do_isns_query", nil)
	}
	alias, _ := d.store.AliasNameGet()

	if err := isnsQueryAndAdd(ctx, d.isns, d.registry, name, alias); err != nil {
		return newErr(ErrRPCFailure, "dispatcher.do_isns_query", err)
	}
	return nil
}
