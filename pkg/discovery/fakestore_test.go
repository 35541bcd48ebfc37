package discovery

import "sync"

// fakeStore is a minimal in-memory Store for exercising the registry,
// workers and dispatcher without a real filestore/sqlstore backend.
type fakeStore struct {
	mu sync.Mutex
	// staticMu and discMu guard the two address-list walks apart from
	// mu, like sqlstore's per-table locks, so a worker walk that calls
	// registry.Add (and through it GetConfigSession) does not deadlock.
	staticMu sync.Mutex
	discMu   sync.Mutex

	discMeth Method

	initiatorName string
	haveInitiator bool
	alias         string
	haveAlias     bool
	chap          map[string]ChapRecord

	params     map[string]ParamRecord
	paramOrder []string

	statics      map[string]StaticEntry
	staticOrder  []string
	discAddrs    []DiscAddrEntry
	configSess   map[string]ConfiguredSessions
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chap:       make(map[string]ChapRecord),
		params:     make(map[string]ParamRecord),
		statics:    make(map[string]StaticEntry),
		configSess: make(map[string]ConfiguredSessions),
	}
}

func (s *fakeStore) Init(restart bool) (bool, error) { return true, nil }

func (s *fakeStore) DiscMethGet() Method { return s.discMeth }

func (s *fakeStore) InitiatorNameGet() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initiatorName, s.haveInitiator
}

func (s *fakeStore) InitiatorNameSet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiatorName = name
	s.haveInitiator = true
	return nil
}

func (s *fakeStore) AliasNameGet() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alias, s.haveAlias
}

func (s *fakeStore) AliasNameSet(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alias = alias
	s.haveAlias = true
	return nil
}

func (s *fakeStore) ChapGet(name string) (ChapRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chap[name]
	return rec, ok
}

func (s *fakeStore) ChapSet(name string, rec ChapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chap[name] = rec
	return nil
}

func (s *fakeStore) ParamLock()   { s.mu.Lock() }
func (s *fakeStore) ParamUnlock() { s.mu.Unlock() }

func (s *fakeStore) ParamNext(cursor *string) (string, ParamRecord, bool) {
	start := 0
	if cursor != nil {
		for i, n := range s.paramOrder {
			if n == *cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(s.paramOrder) {
		return "", ParamRecord{}, false
	}
	name := s.paramOrder[start]
	return name, s.params[name], true
}

func (s *fakeStore) ParamGet(name string) (ParamRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.params[name]
	return rec, ok
}

func (s *fakeStore) ParamSet(name string, rec ParamRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.params[name]; !ok {
		s.paramOrder = append(s.paramOrder, name)
	}
	s.params[name] = rec
	return nil
}

func (s *fakeStore) ParamRemove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.params[name]; !ok {
		return newErr(ErrStoreUnavailable, "fakestore.param_remove", nil)
	}
	delete(s.params, name)
	for i, n := range s.paramOrder {
		if n == name {
			s.paramOrder = append(s.paramOrder[:i], s.paramOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeStore) StaticAddrLock()   { s.staticMu.Lock() }
func (s *fakeStore) StaticAddrUnlock() { s.staticMu.Unlock() }

func (s *fakeStore) StaticAddrNext(cursor *string) (string, StaticEntry, bool) {
	start := 0
	if cursor != nil {
		for i, n := range s.staticOrder {
			if n == *cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(s.staticOrder) {
		return "", StaticEntry{}, false
	}
	name := s.staticOrder[start]
	return name, s.statics[name], true
}

func (s *fakeStore) AddStaticEntry(name string, e StaticEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statics[name]; !ok {
		s.staticOrder = append(s.staticOrder, name)
	}
	s.statics[name] = e
	return nil
}

func (s *fakeStore) DiscAddrLock()   { s.discMu.Lock() }
func (s *fakeStore) DiscAddrUnlock() { s.discMu.Unlock() }

func (s *fakeStore) DiscAddrNext(cursor *int) (DiscAddrEntry, bool) {
	idx := 0
	if cursor != nil {
		idx = *cursor + 1
	}
	if idx >= len(s.discAddrs) {
		return DiscAddrEntry{}, false
	}
	return s.discAddrs[idx], true
}

func (s *fakeStore) AddDiscAddr(e DiscAddrEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discAddrs = append(s.discAddrs, e)
	return nil
}

func (s *fakeStore) GetConfigSession(name string) (ConfiguredSessions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.configSess[name]
	return cs, ok
}

func (s *fakeStore) SetConfigSession(name string, cs ConfiguredSessions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configSess[name] = cs
}
