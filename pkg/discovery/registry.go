package discovery

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Registry is the session registry (§4.C): the single source of truth
// for which iSCSI sessions this initiator currently owns, keyed by
// (target name, discovery method, discovery address, isid). It holds a
// single-writer lock, matching the SCSILUMap pattern of guarding a
// shared map with one sync.RWMutex rather than per-entry locks.
type Registry struct {
	mu       sync.RWMutex
	sessions []*Session

	store     Store
	transport TransportEngine
}

// NewRegistry constructs an empty Registry backed by store and engine.
func NewRegistry(store Store, engine TransportEngine) *Registry {
	return &Registry{store: store, transport: engine}
}

func (r *Registry) resolveConfiguredSessions(targetName string) ConfiguredSessions {
	if cs, ok := r.store.GetConfigSession(targetName); ok {
		return cs
	}
	if cs, ok := r.store.GetConfigSession(""); ok {
		return cs
	}
	return DefaultConfiguredSessions
}

// Add resolves the configured session count for targetName and creates
// that many sessions, each with its own connection, under the write
// lock. A failure at isid N leaves isids [0, N) in place; this
// mirrors iscsid_add's documented behavior and is not rolled back.
func (r *Registry) Add(method Method, discoveredAddr Addr, targetName string, tpgt uint16, targetAddr Addr) error {
	cs := r.resolveConfiguredSessions(targetName)

	r.mu.Lock()
	defer r.mu.Unlock()

	for isid := 0; isid < cs.Count; isid++ {
		key := SessionKey{TargetName: targetName, Method: method, DiscAddr: discoveredAddr, ISID: isid}

		sess := r.findLocked(key)
		if sess == nil {
			handle, err := r.transport.SessCreate(method, discoveredAddr, targetName, tpgt, isid)
			if err != nil {
				log.WithFields(log.Fields{"target": targetName, "method": method, "isid": isid}).
					Warn("discovery: session create failed, aborting add")
				return newErr(ErrRPCFailure, "registry.add", err)
			}
			sess = &Session{
				Key:          key,
				TargetAddr:   targetAddr,
				DiscoveredBy: method,
				State:        SessionOnline,
				handle:       handle,
			}
			r.sessions = append(r.sessions, sess)
		}

		connHandle, err := r.transport.ConnCreate(targetAddr, sess.handle)
		if err != nil {
			log.WithFields(log.Fields{"target": targetName, "method": method, "isid": isid}).
				Warn("discovery: connection create failed, aborting add")
			return newErr(ErrRPCFailure, "registry.add", err)
		}
		sess.connHandle = connHandle
		sess.TargetAddr = targetAddr
	}
	return nil
}

func (r *Registry) findLocked(key SessionKey) *Session {
	for _, s := range r.sessions {
		if s.Key == key {
			return s
		}
	}
	return nil
}

// candidate reports whether s matches the (targetName, method,
// discoveredAddr) selector under the method-sensitive matching algebra
// shared by Del and LoginTargets (§4.C).
func candidate(s *Session, targetName string, method Method, discoveredAddr *Addr) bool {
	if targetName != "" && s.Key.TargetName != targetName {
		return false
	}
	if method != MethodUnknown && s.DiscoveredBy != method {
		return false
	}
	if discoveredAddr == nil {
		return true
	}
	switch s.DiscoveredBy {
	case MethodISNS, MethodSendTargets:
		return s.Key.DiscAddr.Equal(*discoveredAddr)
	case MethodStatic:
		return s.TargetAddr.Equal(*discoveredAddr)
	default:
		return true
	}
}

// Del destroys every matching session. On a destroy failure the
// session is left in place, the aggregate result is marked failed, and
// the walk continues with the remaining candidates. After each
// successful destroy the caller's target-parameter record for that
// name is dropped via Store.ParamRemove, mirroring
// iscsid_remove_target_param.
func (r *Registry) Del(targetName string, method Method, discoveredAddr *Addr) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed bool
	remaining := r.sessions[:0:0]
	for _, s := range r.sessions {
		if !candidate(s, targetName, method, discoveredAddr) {
			remaining = append(remaining, s)
			continue
		}
		if err := r.transport.SessDestroy(s.handle); err != nil {
			log.WithFields(log.Fields{"target": s.Key.TargetName, "method": s.DiscoveredBy}).
				Warn("discovery: session destroy failed, retaining session")
			failed = true
			remaining = append(remaining, s)
			continue
		}
		if err := r.store.ParamRemove(s.Key.TargetName); err != nil {
			log.WithFields(log.Fields{"target": s.Key.TargetName}).
				Debug("discovery: no target-parameter record to remove")
		}
	}
	r.sessions = remaining

	if failed {
		return newErr(ErrSessionBusy, "registry.del", nil)
	}
	return nil
}

// LoginTargets requests transport-level online for every matching
// session and reports whether at least one match was attempted.
// method == MethodUnknown matches every session, used by config_all
// and the dispatcher's config_one retry.
func (r *Registry) LoginTargets(targetName string, method Method, discoveredAddr *Addr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := false
	for _, s := range r.sessions {
		if !candidate(s, targetName, method, discoveredAddr) {
			continue
		}
		matched = true
		r.transport.SessOnline(s.handle)
	}
	return matched
}

// SetParam applies a projected parameter to the transport engine,
// used by the dispatcher's init_config/init_targets passes to install
// persisted overrides without touching session state.
func (r *Registry) SetParam(req SetRequest) error {
	if err := r.transport.SetParams(req); err != nil {
		return newErr(ErrRPCFailure, "registry.set_param", err)
	}
	return nil
}

// Sessions returns a snapshot of the current registry contents, for
// inspection by the control API and tests.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, len(r.sessions))
	for i, s := range r.sessions {
		out[i] = *s
	}
	return out
}
