package discovery

import (
	"context"
	"testing"
	"time"
)

// newTestDispatcher wires a Dispatcher the same way Core does in
// lifecycle.go: each worker's enabled func reads back the dispatcher's
// own mask, so Enable/Disable actually gate worker cycles.
func newTestDispatcher(store Store, tr *fakeTransport, sink *fakeSink) (*Dispatcher, *Registry, map[Method]*Worker) {
	reg := NewRegistry(store, tr)

	var d *Dispatcher
	workers := make(map[Method]*Worker, len(methods))
	wake := make(map[Method]chan struct{}, len(methods))
	barrier := NewBarrier(sink, wake)
	isns := newFakeISNS()
	sendtgts := newFakeSendTargets()
	for _, m := range methods {
		mm := m
		enabledFn := func() bool { return d != nil && d.EnabledMask()&mm != 0 }
		w := NewWorker(mm, reg, store, isns, sendtgts, barrier, enabledFn)
		workers[mm] = w
		wake[mm] = w.Wake
	}
	d = NewDispatcher(reg, store, barrier, workers, isns, sendtgts)
	return d, reg, workers
}

func TestDispatcherInitEmitsEveryMethodAndBootstrapsIdentity(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, workers := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, m := range methods {
		if sc := endSubclass[m]; sink.Count(sc) == 0 {
			t.Errorf("expected an end event for method %v on init, got none", m)
		}
	}
	for _, w := range workers {
		if w.IsRunning() {
			t.Errorf("expected method %v's worker to remain stopped with nothing enabled", w.Method)
		}
	}

	name, ok := store.InitiatorNameGet()
	if !ok || name == "" {
		t.Error("expected Init to bootstrap an initiator name")
	}

	// A second Init call must be safe to repeat.
	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error on second init: %v", err)
	}
}

func TestDispatcherInitReconcilesEnabledMaskFromStore(t *testing.T) {
	store := newFakeStore()
	store.discMeth = MethodStatic | MethodISNS
	sink := newFakeSink()
	d, _, workers := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.EnabledMask(); got != MethodStatic|MethodISNS {
		t.Errorf("expected enabled mask %v, got %v", MethodStatic|MethodISNS, got)
	}
	if !workers[MethodStatic].IsRunning() || !workers[MethodISNS].IsRunning() {
		t.Error("expected the persisted-enabled methods' workers to be running after init")
	}
	if workers[MethodSendTargets].IsRunning() || workers[MethodSLP].IsRunning() {
		t.Error("expected the non-enabled methods' workers to remain stopped")
	}
}

func TestDispatcherInitFailureSynthesizesEveryPair(t *testing.T) {
	store := &failingInitStore{fakeStore: newFakeStore()}
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err == nil {
		t.Fatal("expected an error when the store fails to initialize")
	}
	for _, m := range methods {
		if sc := endSubclass[m]; sink.Count(sc) == 0 {
			t.Errorf("expected a synthesized end event for method %v, got none", m)
		}
	}
}

// failingInitStore wraps fakeStore to make Init report failure,
// exercising the dispatcher's failAllMethods path without needing a
// second store implementation.
type failingInitStore struct {
	*fakeStore
}

func (s *failingInitStore) Init(restart bool) (bool, error) {
	return false, newErr(ErrStoreUnavailable, "test.init", nil)
}

func TestDispatcherEnableSetsBitsAndPokesWhenRequested(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Enable(MethodStatic, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.EnabledMask(); got&MethodStatic == 0 {
		t.Error("expected MethodStatic to be set in the enabled mask")
	}
	if sink.Count(subclassStaticEnd) == 0 {
		t.Error("expected a poke-triggered end event for the enabled method")
	}
}

func TestDispatcherDisableStopsWorkerAndClearsBit(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Enable(MethodStatic, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Disable(MethodStatic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.EnabledMask(); got&MethodStatic != 0 {
		t.Error("expected MethodStatic to be cleared after Disable")
	}
}

func TestDispatcherDisableAbortsOnDelFailure(t *testing.T) {
	store := newFakeStore()
	addr, _ := NormalizeAddr(4, []byte{10, 0, 0, 1}, 3260)
	tr := newFakeTransport()
	sink := newFakeSink()
	d, reg, _ := newTestDispatcher(store, tr, sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Enable(MethodStatic, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Add(MethodStatic, addr, "iqn.test:target0", 1, addr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr.FailSessDestroy["iqn.test:target0"] = true

	err := d.Disable(MethodStatic)
	if err == nil {
		t.Fatal("expected Disable to fail when sess_destroy is refused")
	}
	if got := d.EnabledMask(); got&MethodStatic == 0 {
		t.Error("expected MethodStatic to remain enabled after a failed disable")
	}
	if sink.Count(subclassStaticEnd) == 0 {
		t.Error("expected the attempted method to still emit its end event despite the failure")
	}
}

func TestDispatcherConfigOneRetriesOnceWhenNothingMatched(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := d.ConfigOne(context.Background(), "iqn.test:nonexistent", false)
	if err == nil {
		t.Fatal("expected an error when no session matches even after the retry poke")
	}
	if sink.Count(subclassStaticEnd) == 0 {
		t.Error("expected ConfigOne's poke to drive a full barrier cycle")
	}
}

func TestDispatcherConfigOneMatchesWithoutPokeWhenAlreadyPresent(t *testing.T) {
	store := newFakeStore()
	addr, _ := NormalizeAddr(4, []byte{10, 0, 0, 1}, 3260)
	tr := newFakeTransport()
	sink := newFakeSink()
	d, reg, _ := newTestDispatcher(store, tr, sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Add(MethodStatic, addr, "iqn.test:target0", 1, addr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pokesBefore := sink.Count(subclassStaticEnd)
	if err := d.ConfigOne(context.Background(), "iqn.test:target0", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sink.Count(subclassStaticEnd); got != pokesBefore {
		t.Errorf("expected no extra poke when the target already matched, got %d extra end events", got-pokesBefore)
	}
}

func TestDispatcherConfigOneProtectHonorsDebounce(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Prime the debounce window so the next protected call, made
	// immediately after, must skip the retry poke.
	d.lastConfig = time.Now()

	pokesBefore := sink.Count(subclassStaticEnd)
	err := d.ConfigOne(context.Background(), "iqn.test:nonexistent", true)
	if err == nil {
		t.Fatal("expected an error since nothing matched and no retry was attempted")
	}
	if got := sink.Count(subclassStaticEnd); got != pokesBefore {
		t.Errorf("expected the debounce window to suppress the retry poke, got %d extra end events", got-pokesBefore)
	}
}

func TestDispatcherConfigAllPokesAndSweeps(t *testing.T) {
	store := newFakeStore()
	addr, _ := NormalizeAddr(4, []byte{10, 0, 0, 1}, 3260)
	tr := newFakeTransport()
	sink := newFakeSink()
	d, reg, _ := newTestDispatcher(store, tr, sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Add(MethodStatic, addr, "iqn.test:target0", 1, addr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.ConfigAll(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.OnlineCalls == 0 {
		t.Error("expected ConfigAll's unconditional sweep to bring at least one session online")
	}
}

func TestDispatcherPokeDrivesABarrierCycleForTheRequestedMethod(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := sink.Count(subclassStaticEnd)
	if err := d.Poke(context.Background(), MethodStatic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sink.Count(subclassStaticEnd); got == before {
		t.Error("expected Poke to drive a full barrier cycle for the targeted method")
	}
}

func TestDispatcherDoSendTargetsAddsReturnedTargets(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, reg, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	addr, _ := NormalizeAddr(4, []byte{10, 0, 0, 9}, 3260)
	st := d.sendtgts.(*fakeSendTargets)
	st.All[addr.String()] = []SendTargetsResult{
		{TargetName: "iqn.test:ondemand", TargetAddr: addr, TPGT: 1},
	}

	if err := d.DoSendTargets(context.Background(), addr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, s := range reg.Sessions() {
		if s.Key.TargetName == "iqn.test:ondemand" {
			found = true
		}
	}
	if !found {
		t.Error("expected the on-demand probe's result to be added to the registry")
	}
}

func TestDispatcherDoSendTargetsPropagatesRPCFailure(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	addr, _ := NormalizeAddr(4, []byte{10, 0, 0, 9}, 3260)
	st := d.sendtgts.(*fakeSendTargets)
	st.Err = errBoom

	if err := d.DoSendTargets(context.Background(), addr); err == nil {
		t.Error("expected the rpc failure to propagate")
	}
}

func TestDispatcherDoISNSQueryAddsReturnedTargets(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, reg, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.Init(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	addr, _ := NormalizeAddr(4, []byte{10, 0, 0, 5}, 3260)
	isnsClient := d.isns.(*fakeISNS)
	isnsClient.QueryResult = []PortalGroup{
		{ServerAddr: addr, TargetAddr: addr, TargetName: "iqn.test:isns-ondemand", TPGT: 1},
	}

	if err := d.DoISNSQuery(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, s := range reg.Sessions() {
		if s.Key.TargetName == "iqn.test:isns-ondemand" {
			found = true
		}
	}
	if !found {
		t.Error("expected the on-demand iSNS query's result to be added to the registry")
	}
}

func TestDispatcherDoISNSQueryRequiresAnInitiatorName(t *testing.T) {
	store := newFakeStore()
	sink := newFakeSink()
	d, _, _ := newTestDispatcher(store, newFakeTransport(), sink)

	if err := d.DoISNSQuery(context.Background()); err == nil {
		t.Error("expected an error when no initiator name is set yet")
	}
}
