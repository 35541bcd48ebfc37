/*
Copyright 2016 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package filestore implements discovery.Store on top of a single
// JSON document loaded with viper, the way pkg/config loads gotgt's
// daemon configuration.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/gostor/iscsid/pkg/discovery"
)

// ConfigFileName is the name of the on-disk document this store reads
// and writes, matching the teacher's ConfigFileName convention.
const ConfigFileName = "discovery.json"

// document is the JSON shape persisted to disk; viper unmarshals into
// it wholesale on every Init, and Store marshals it back out on every
// mutation.
type document struct {
	DiscoveryMethod uint8                                   `json:"discovery_method" mapstructure:"discovery_method"`
	InitiatorName   string                                  `json:"initiator_name" mapstructure:"initiator_name"`
	AliasName       string                                  `json:"alias_name" mapstructure:"alias_name"`
	Chap            map[string]chapDoc                      `json:"chap" mapstructure:"chap"`
	Params          map[string]paramDoc                     `json:"params" mapstructure:"params"`
	StaticAddrs     map[string]staticDoc                    `json:"static_addrs" mapstructure:"static_addrs"`
	DiscAddrs       []discAddrDoc                           `json:"disc_addrs" mapstructure:"disc_addrs"`
	ConfigSessions  map[string]discovery.ConfiguredSessions `json:"config_sessions" mapstructure:"config_sessions"`
}

type chapDoc struct {
	User   string `json:"user"`
	Secret []byte `json:"secret"`
}

type paramDoc struct {
	Bitmap uint64               `json:"bitmap"`
	Params discovery.LoginParams `json:"params"`
}

type staticDoc struct {
	InSize int    `json:"insize"`
	Bytes  []byte `json:"bytes"`
	Port   uint16 `json:"port"`
	TPGT   uint16 `json:"tpgt"`
}

type discAddrDoc struct {
	InSize int    `json:"insize"`
	Bytes  []byte `json:"bytes"`
	Port   uint16 `json:"port"`
	TPGT   uint16 `json:"tpgt"`
}

// Store is a discovery.Store backed by a JSON file under configDir,
// loaded and saved through viper. All access is guarded by a single
// mutex; this store is not meant for the high-contention sqlstore use
// case, only for a single-operator workstation deployment.
type Store struct {
	mu        sync.Mutex
	configDir string
	path      string
	doc       document

	paramKeys  []string
	staticKeys []string
}

// New constructs a Store rooted at configDir. An empty configDir falls
// back to "~/.iscsid", mirroring pkg/config's ConfigDir default.
func New(configDir string) (*Store, error) {
	if configDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".iscsid")
	}
	return &Store{
		configDir: configDir,
		path:      filepath.Join(configDir, ConfigFileName),
		doc: document{
			Chap:           make(map[string]chapDoc),
			Params:         make(map[string]paramDoc),
			StaticAddrs:    make(map[string]staticDoc),
			ConfigSessions: make(map[string]discovery.ConfiguredSessions),
		},
	}, nil
}

// Init loads the document from disk. restart is accepted for
// interface compatibility; this store always re-reads from disk since
// it keeps no separate in-memory authority once closed.
func (s *Store) Init(restart bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			log.WithField("path", s.path).Info("discovery: no existing config, starting fresh")
			return true, nil
		}
		return false, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	if err := v.Unmarshal(&s.doc); err != nil {
		return false, fmt.Errorf("filestore: unmarshal %s: %w", s.path, err)
	}
	if s.doc.Chap == nil {
		s.doc.Chap = make(map[string]chapDoc)
	}
	if s.doc.Params == nil {
		s.doc.Params = make(map[string]paramDoc)
	}
	if s.doc.StaticAddrs == nil {
		s.doc.StaticAddrs = make(map[string]staticDoc)
	}
	if s.doc.ConfigSessions == nil {
		s.doc.ConfigSessions = make(map[string]discovery.ConfiguredSessions)
	}
	return true, nil
}

func (s *Store) saveLocked() error {
	v := viper.New()
	v.SetConfigType("json")
	v.Set("discovery_method", s.doc.DiscoveryMethod)
	v.Set("initiator_name", s.doc.InitiatorName)
	v.Set("alias_name", s.doc.AliasName)
	v.Set("chap", s.doc.Chap)
	v.Set("params", s.doc.Params)
	v.Set("static_addrs", s.doc.StaticAddrs)
	v.Set("disc_addrs", s.doc.DiscAddrs)
	v.Set("config_sessions", s.doc.ConfigSessions)
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("filestore: write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) DiscMethGet() discovery.Method {
	s.mu.Lock()
	defer s.mu.Unlock()
	return discovery.Method(s.doc.DiscoveryMethod)
}

func (s *Store) InitiatorNameGet() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.InitiatorName, s.doc.InitiatorName != ""
}

func (s *Store) InitiatorNameSet(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.InitiatorName = name
	return s.saveLocked()
}

func (s *Store) AliasNameGet() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.AliasName, s.doc.AliasName != ""
}

func (s *Store) AliasNameSet(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.AliasName = alias
	return s.saveLocked()
}

func (s *Store) ChapGet(name string) (discovery.ChapRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.doc.Chap[name]
	if !ok {
		return discovery.ChapRecord{}, false
	}
	return discovery.ChapRecord{User: c.User, Secret: c.Secret}, true
}

func (s *Store) ChapSet(name string, rec discovery.ChapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Chap[name] = chapDoc{User: rec.User, Secret: rec.Secret}
	return s.saveLocked()
}

func (s *Store) ParamLock() {
	s.mu.Lock()
	s.paramKeys = sortedKeys(s.doc.Params)
}

func (s *Store) ParamUnlock() {
	s.paramKeys = nil
	s.mu.Unlock()
}

func (s *Store) ParamNext(cursor *string) (string, discovery.ParamRecord, bool) {
	idx := 0
	if cursor != nil {
		for i, k := range s.paramKeys {
			if k == *cursor {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(s.paramKeys) {
		return "", discovery.ParamRecord{}, false
	}
	name := s.paramKeys[idx]
	p := s.doc.Params[name]
	return name, discovery.ParamRecord{Bitmap: p.Bitmap, Params: p.Params}, true
}

func (s *Store) ParamGet(name string) (discovery.ParamRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.doc.Params[name]
	if !ok {
		return discovery.ParamRecord{}, false
	}
	return discovery.ParamRecord{Bitmap: p.Bitmap, Params: p.Params}, true
}

func (s *Store) ParamRemove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Params[name]; !ok {
		return fmt.Errorf("filestore: no param record for %q", name)
	}
	delete(s.doc.Params, name)
	return s.saveLocked()
}

func (s *Store) StaticAddrLock() {
	s.mu.Lock()
	s.staticKeys = sortedKeys(s.doc.StaticAddrs)
}

func (s *Store) StaticAddrUnlock() {
	s.staticKeys = nil
	s.mu.Unlock()
}

func (s *Store) StaticAddrNext(cursor *string) (string, discovery.StaticEntry, bool) {
	idx := 0
	if cursor != nil {
		for i, k := range s.staticKeys {
			if k == *cursor {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(s.staticKeys) {
		return "", discovery.StaticEntry{}, false
	}
	name := s.staticKeys[idx]
	e := s.doc.StaticAddrs[name]
	return name, discovery.StaticEntry{TargetName: name, InSize: e.InSize, Bytes: e.Bytes, Port: e.Port, TPGT: e.TPGT}, true
}

func (s *Store) DiscAddrLock() {
	s.mu.Lock()
}

func (s *Store) DiscAddrUnlock() {
	s.mu.Unlock()
}

func (s *Store) DiscAddrNext(cursor *int) (discovery.DiscAddrEntry, bool) {
	idx := 0
	if cursor != nil {
		idx = *cursor + 1
	}
	if idx >= len(s.doc.DiscAddrs) {
		return discovery.DiscAddrEntry{}, false
	}
	e := s.doc.DiscAddrs[idx]
	return discovery.DiscAddrEntry{InSize: e.InSize, Bytes: e.Bytes, Port: e.Port, TPGT: e.TPGT}, true
}

func (s *Store) GetConfigSession(name string) (discovery.ConfiguredSessions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.doc.ConfigSessions[name]
	return cs, ok
}

// AddStaticEntry and AddDiscAddr let the control API (4.K) mutate the
// static/discovery-address lists this store serves the workers from.

func (s *Store) AddStaticEntry(name string, e discovery.StaticEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.StaticAddrs[name] = staticDoc{InSize: e.InSize, Bytes: e.Bytes, Port: e.Port, TPGT: e.TPGT}
	return s.saveLocked()
}

func (s *Store) AddDiscAddr(e discovery.DiscAddrEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.DiscAddrs = append(s.doc.DiscAddrs, discAddrDoc{InSize: e.InSize, Bytes: e.Bytes, Port: e.Port, TPGT: e.TPGT})
	return s.saveLocked()
}

func (s *Store) SetDiscMeth(m discovery.Method) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.DiscoveryMethod = uint8(m)
	return s.saveLocked()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
