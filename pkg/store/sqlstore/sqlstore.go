// Package sqlstore implements discovery.Store on top of SQLite,
// following the same open-a-file, PRAGMA-driven schema check, and
// sync.RWMutex-guarded *sql.DB shape as the scion pathdb sqlite
// backend.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gostor/iscsid/pkg/discovery"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS initiator (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	discovery_method INTEGER NOT NULL DEFAULT 0,
	initiator_name TEXT NOT NULL DEFAULT '',
	alias_name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS chap (
	name TEXT PRIMARY KEY,
	user TEXT NOT NULL,
	secret BLOB
);
CREATE TABLE IF NOT EXISTS params (
	name TEXT PRIMARY KEY,
	bitmap INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS static_addrs (
	name TEXT PRIMARY KEY,
	insize INTEGER NOT NULL,
	bytes BLOB NOT NULL,
	port INTEGER NOT NULL,
	tpgt INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS disc_addrs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	insize INTEGER NOT NULL,
	bytes BLOB NOT NULL,
	port INTEGER NOT NULL,
	tpgt INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS config_sessions (
	name TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	bound INTEGER NOT NULL
);
`

// Store is a discovery.Store backed by a SQLite database. Each table
// family (params, static addresses, discovery addresses) has its own
// RWMutex so a worker walking one list does not block another
// worker's walk of a different list, while Init/ChapSet/etc. share a
// coarser lock guarding the single-row initiator table.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	paramMu  sync.RWMutex
	staticMu sync.RWMutex
	discMu   sync.RWMutex

	paramCursor  []string
	staticCursor []string
}

// New opens (creating if absent) a SQLite database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Init applies the schema (idempotent) and seeds the single initiator
// row if absent. restart is accepted for interface compatibility; a
// SQLite-backed store has no separate "already loaded" state to
// reconcile.
func (s *Store) Init(restart bool) (bool, error) {
	if _, err := s.db.Exec(schema); err != nil {
		return false, fmt.Errorf("sqlstore: apply schema: %w", err)
	}
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return false, fmt.Errorf("sqlstore: check schema version: %w", err)
	}
	if version < schemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", schemaVersion)); err != nil {
			return false, fmt.Errorf("sqlstore: set schema version: %w", err)
		}
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO initiator (id) VALUES (0)`); err != nil {
		return false, fmt.Errorf("sqlstore: seed initiator row: %w", err)
	}
	return true, nil
}

func (s *Store) DiscMethGet() discovery.Method {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var m uint8
	_ = s.db.QueryRow(`SELECT discovery_method FROM initiator WHERE id = 0`).Scan(&m)
	return discovery.Method(m)
}

func (s *Store) InitiatorNameGet() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var name string
	if err := s.db.QueryRow(`SELECT initiator_name FROM initiator WHERE id = 0`).Scan(&name); err != nil {
		return "", false
	}
	return name, name != ""
}

func (s *Store) InitiatorNameSet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE initiator SET initiator_name = ? WHERE id = 0`, name)
	return err
}

func (s *Store) AliasNameGet() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var alias string
	if err := s.db.QueryRow(`SELECT alias_name FROM initiator WHERE id = 0`).Scan(&alias); err != nil {
		return "", false
	}
	return alias, alias != ""
}

func (s *Store) AliasNameSet(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE initiator SET alias_name = ? WHERE id = 0`, alias)
	return err
}

func (s *Store) ChapGet(name string) (discovery.ChapRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var user string
	var secret []byte
	if err := s.db.QueryRow(`SELECT user, secret FROM chap WHERE name = ?`, name).Scan(&user, &secret); err != nil {
		return discovery.ChapRecord{}, false
	}
	return discovery.ChapRecord{User: user, Secret: secret}, true
}

func (s *Store) ChapSet(name string, rec discovery.ChapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO chap (name, user, secret) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET user = excluded.user, secret = excluded.secret`,
		name, rec.User, rec.Secret)
	return err
}

func (s *Store) ParamLock() {
	s.paramMu.Lock()
	rows, err := s.db.Query(`SELECT name FROM params ORDER BY name`)
	if err != nil {
		return
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if rows.Scan(&n) == nil {
			names = append(names, n)
		}
	}
	s.paramCursor = names
}

func (s *Store) ParamUnlock() {
	s.paramCursor = nil
	s.paramMu.Unlock()
}

func (s *Store) ParamNext(cursor *string) (string, discovery.ParamRecord, bool) {
	idx := 0
	if cursor != nil {
		for i, n := range s.paramCursor {
			if n == *cursor {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(s.paramCursor) {
		return "", discovery.ParamRecord{}, false
	}
	name := s.paramCursor[idx]
	rec, ok := s.paramGetLocked(name)
	return name, rec, ok
}

func (s *Store) ParamGet(name string) (discovery.ParamRecord, bool) {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	return s.paramGetLocked(name)
}

func (s *Store) paramGetLocked(name string) (discovery.ParamRecord, bool) {
	var bitmap uint64
	var payload string
	if err := s.db.QueryRow(`SELECT bitmap, payload FROM params WHERE name = ?`, name).Scan(&bitmap, &payload); err != nil {
		return discovery.ParamRecord{}, false
	}
	var params discovery.LoginParams
	if err := json.Unmarshal([]byte(payload), &params); err != nil {
		return discovery.ParamRecord{}, false
	}
	return discovery.ParamRecord{Bitmap: bitmap, Params: params}, true
}

func (s *Store) ParamRemove(name string) error {
	s.paramMu.Lock()
	defer s.paramMu.Unlock()
	res, err := s.db.Exec(`DELETE FROM params WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sqlstore: no param record for %q", name)
	}
	return nil
}

// ParamSet lets the control API install or update an override record.
func (s *Store) ParamSet(name string, rec discovery.ParamRecord) error {
	s.paramMu.Lock()
	defer s.paramMu.Unlock()
	payload, err := json.Marshal(rec.Params)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO params (name, bitmap, payload) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET bitmap = excluded.bitmap, payload = excluded.payload`,
		name, rec.Bitmap, string(payload))
	return err
}

func (s *Store) StaticAddrLock() {
	s.staticMu.Lock()
	rows, err := s.db.Query(`SELECT name FROM static_addrs ORDER BY name`)
	if err != nil {
		return
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if rows.Scan(&n) == nil {
			names = append(names, n)
		}
	}
	s.staticCursor = names
}

func (s *Store) StaticAddrUnlock() {
	s.staticCursor = nil
	s.staticMu.Unlock()
}

func (s *Store) StaticAddrNext(cursor *string) (string, discovery.StaticEntry, bool) {
	idx := 0
	if cursor != nil {
		for i, n := range s.staticCursor {
			if n == *cursor {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(s.staticCursor) {
		return "", discovery.StaticEntry{}, false
	}
	name := s.staticCursor[idx]
	var e discovery.StaticEntry
	e.TargetName = name
	if err := s.db.QueryRow(`SELECT insize, bytes, port, tpgt FROM static_addrs WHERE name = ?`, name).
		Scan(&e.InSize, &e.Bytes, &e.Port, &e.TPGT); err != nil {
		return "", discovery.StaticEntry{}, false
	}
	return name, e, true
}

// AddStaticEntry inserts or replaces a static target row.
func (s *Store) AddStaticEntry(name string, e discovery.StaticEntry) error {
	s.staticMu.Lock()
	defer s.staticMu.Unlock()
	_, err := s.db.Exec(`INSERT INTO static_addrs (name, insize, bytes, port, tpgt) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET insize = excluded.insize, bytes = excluded.bytes, port = excluded.port, tpgt = excluded.tpgt`,
		name, e.InSize, e.Bytes, e.Port, e.TPGT)
	return err
}

func (s *Store) DiscAddrLock()   { s.discMu.Lock() }
func (s *Store) DiscAddrUnlock() { s.discMu.Unlock() }

func (s *Store) DiscAddrNext(cursor *int) (discovery.DiscAddrEntry, bool) {
	idx := int64(0)
	if cursor != nil {
		idx = int64(*cursor) + 1
	}
	rows, err := s.db.Query(`SELECT insize, bytes, port, tpgt FROM disc_addrs ORDER BY id LIMIT 1 OFFSET ?`, idx)
	if err != nil {
		return discovery.DiscAddrEntry{}, false
	}
	defer rows.Close()
	if !rows.Next() {
		return discovery.DiscAddrEntry{}, false
	}
	var e discovery.DiscAddrEntry
	if err := rows.Scan(&e.InSize, &e.Bytes, &e.Port, &e.TPGT); err != nil {
		return discovery.DiscAddrEntry{}, false
	}
	return e, true
}

// AddDiscAddr appends a SendTargets/iSNS discovery address row.
func (s *Store) AddDiscAddr(e discovery.DiscAddrEntry) error {
	s.discMu.Lock()
	defer s.discMu.Unlock()
	_, err := s.db.Exec(`INSERT INTO disc_addrs (insize, bytes, port, tpgt) VALUES (?, ?, ?, ?)`,
		e.InSize, e.Bytes, e.Port, e.TPGT)
	return err
}

func (s *Store) GetConfigSession(name string) (discovery.ConfiguredSessions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	var bound bool
	if err := s.db.QueryRow(`SELECT count, bound FROM config_sessions WHERE name = ?`, name).Scan(&count, &bound); err != nil {
		return discovery.ConfiguredSessions{}, false
	}
	return discovery.ConfiguredSessions{Count: count, Bound: bound}, true
}

// SetConfigSession installs a per-target or (name == "") per-initiator
// configured-sessions record.
func (s *Store) SetConfigSession(name string, cs discovery.ConfiguredSessions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO config_sessions (name, count, bound) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET count = excluded.count, bound = excluded.bound`,
		name, cs.Count, cs.Bound)
	return err
}
