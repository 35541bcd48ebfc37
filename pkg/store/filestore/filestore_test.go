package filestore

import (
	"testing"

	"github.com/gostor/iscsid/pkg/discovery"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ok, err := s.Init(false); err != nil || !ok {
		t.Fatalf("Init: ok=%v err=%v", ok, err)
	}
	return s
}

func TestInitOnMissingFileStartsFresh(t *testing.T) {
	s := newTestStore(t)
	if _, ok := s.InitiatorNameGet(); ok {
		t.Error("expected no initiator name on a fresh store")
	}
}

func TestInitiatorNameRoundTripsThroughDisk(t *testing.T) {
	s := newTestStore(t)
	if err := s.InitiatorNameSet("iqn.test:initiator0"); err != nil {
		t.Fatalf("InitiatorNameSet: %v", err)
	}

	reopened, err := New(s.configDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ok, err := reopened.Init(false); err != nil || !ok {
		t.Fatalf("Init: ok=%v err=%v", ok, err)
	}
	name, ok := reopened.InitiatorNameGet()
	if !ok || name != "iqn.test:initiator0" {
		t.Errorf("expected the name to survive a reload, got %q, ok=%v", name, ok)
	}
}

func TestChapRoundTrips(t *testing.T) {
	s := newTestStore(t)
	rec := discovery.ChapRecord{User: "alice", Secret: []byte("s3cr3t")}
	if err := s.ChapSet("iqn.test:t0", rec); err != nil {
		t.Fatalf("ChapSet: %v", err)
	}
	got, ok := s.ChapGet("iqn.test:t0")
	if !ok || got.User != "alice" || string(got.Secret) != "s3cr3t" {
		t.Errorf("expected %+v, got %+v, ok=%v", rec, got, ok)
	}
}

func TestStaticAddrWalkVisitsEveryEntryOnce(t *testing.T) {
	s := newTestStore(t)
	entries := map[string]discovery.StaticEntry{
		"iqn.test:a": {InSize: 4, Bytes: []byte{10, 0, 0, 1}, Port: 3260, TPGT: 1},
		"iqn.test:b": {InSize: 4, Bytes: []byte{10, 0, 0, 2}, Port: 3260, TPGT: 1},
		"iqn.test:c": {InSize: 4, Bytes: []byte{10, 0, 0, 3}, Port: 3260, TPGT: 1},
	}
	for name, e := range entries {
		if err := s.AddStaticEntry(name, e); err != nil {
			t.Fatalf("AddStaticEntry(%q): %v", name, err)
		}
	}

	s.StaticAddrLock()
	defer s.StaticAddrUnlock()

	seen := make(map[string]bool)
	var cursor *string
	for {
		name, _, ok := s.StaticAddrNext(cursor)
		if !ok {
			break
		}
		if seen[name] {
			t.Fatalf("entry %q visited twice", name)
		}
		seen[name] = true
		cursor = &name
	}
	if len(seen) != len(entries) {
		t.Errorf("expected %d entries visited, got %d", len(entries), len(seen))
	}
}

func TestDiscAddrWalkAdvancesPastEachEntry(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.AddDiscAddr(discovery.DiscAddrEntry{InSize: 4, Bytes: []byte{10, 0, 0, byte(i)}, Port: 3260, TPGT: 1}); err != nil {
			t.Fatalf("AddDiscAddr: %v", err)
		}
	}

	s.DiscAddrLock()
	defer s.DiscAddrUnlock()

	var cursor *int
	count := 0
	for {
		entry, ok := s.DiscAddrNext(cursor)
		if !ok {
			break
		}
		count++
		idx := 0
		if cursor != nil {
			idx = *cursor + 1
		}
		if entry.Bytes[3] != byte(idx) {
			t.Errorf("expected entry %d to have last octet %d, got %d", idx, idx, entry.Bytes[3])
		}
		cursor = &idx
		if count > 10 {
			t.Fatal("walk did not terminate; DiscAddrNext's cursor is stuck")
		}
	}
	if count != 3 {
		t.Errorf("expected to visit 3 entries, got %d", count)
	}
}

func TestSetDiscMethAndGetConfigSession(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetDiscMeth(discovery.MethodStatic | discovery.MethodISNS); err != nil {
		t.Fatalf("SetDiscMeth: %v", err)
	}
	if got := s.DiscMethGet(); got != discovery.MethodStatic|discovery.MethodISNS {
		t.Errorf("expected the set bitmap to round-trip, got %v", got)
	}
	if _, ok := s.GetConfigSession("iqn.test:unconfigured"); ok {
		t.Error("expected no configured-sessions record for an unconfigured name")
	}
}
