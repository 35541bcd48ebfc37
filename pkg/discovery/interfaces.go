package discovery

import "context"

// StaticEntry is one row of the persisted static-target list.
type StaticEntry struct {
	TargetName string
	InSize     int
	Bytes      []byte
	Port       uint16
	TPGT       uint16
}

// DiscAddrEntry is one row of the persisted SendTargets/iSNS discovery
// address list.
type DiscAddrEntry struct {
	InSize int
	Bytes  []byte
	Port   uint16
	TPGT   uint16
}

// ParamRecord is the persisted per-name parameter override: a bitmap
// of which catalogued ParamIDs are overridden, plus the backing values.
type ParamRecord struct {
	Bitmap uint64
	Params LoginParams
}

// ChapRecord is the persisted CHAP credential for a name.
type ChapRecord struct {
	User   string
	Secret []byte
}

// Store is the persistent configuration store this core consumes
// (§6). It is implemented by pkg/store/filestore and pkg/store/sqlstore.
type Store interface {
	Init(restart bool) (bool, error)

	DiscMethGet() Method

	InitiatorNameGet() (string, bool)
	InitiatorNameSet(name string) error
	AliasNameGet() (string, bool)
	AliasNameSet(alias string) error
	ChapGet(name string) (ChapRecord, bool)
	ChapSet(name string, rec ChapRecord) error

	ParamLock()
	ParamUnlock()
	// ParamNext advances a walk cursor; cursor == nil starts a new
	// walk. It returns false when the walk is exhausted.
	ParamNext(cursor *string) (name string, rec ParamRecord, ok bool)
	ParamGet(name string) (ParamRecord, bool)
	ParamRemove(name string) error

	StaticAddrLock()
	StaticAddrUnlock()
	StaticAddrNext(cursor *string) (name string, entry StaticEntry, ok bool)

	DiscAddrLock()
	DiscAddrUnlock()
	DiscAddrNext(cursor *int) (entry DiscAddrEntry, ok bool)

	GetConfigSession(name string) (ConfiguredSessions, bool)
}

// TransportEngine is the iSCSI login/session transport this core
// consumes (§6). Session/Conn are opaque handles returned to the
// registry and passed back on destroy/online.
type TransportEngine interface {
	SetParams(req SetRequest) error
	SessCreate(method Method, discAddr Addr, targetName string, tpgt uint16, isid int) (interface{}, error)
	ConnCreate(targetAddr Addr, session interface{}) (interface{}, error)
	SessDestroy(session interface{}) error
	SessOnline(session interface{})
}

// PortalGroup is one entry of an iSNS portal-group query result: the
// address the iSNS server itself sits at, plus the target-side portal.
type PortalGroup struct {
	ServerAddr Addr
	TargetAddr Addr
	TargetName string
	TPGT       uint16
}

// SCNType enumerates the iSNS state-change notification kinds this
// core reacts to (§4.G).
type SCNType uint32

const (
	SCNObjAdded SCNType = iota
	SCNObjRemoved
	SCNObjUpdated
	SCNObjUnknown
)

// SCNCallback is invoked by the iSNS client on whatever thread it
// selects for delivering a state-change notification.
type SCNCallback func(scnType SCNType, sourceKey string)

// ISNSClient is the iSNS protocol codec this core consumes (§6).
type ISNSClient interface {
	Query(ctx context.Context, isid uint64, name, alias string) ([]PortalGroup, error)
	QueryOneServer(ctx context.Context, server Addr, isid uint64, name, alias string) ([]PortalGroup, error)
	QueryOneNode(ctx context.Context, sourceKey string, isid uint64, name string) ([]PortalGroup, error)
	Reg(ctx context.Context, isid uint64, name, alias string, cb SCNCallback) error
	Dereg(ctx context.Context, isid uint64, name string) error
}

// SendTargetsResult is one row returned by a SendTargets RPC.
type SendTargetsResult struct {
	TargetName string
	TargetAddr Addr
	TPGT       uint16
}

// SendTargetsClient issues the SendTargets text-negotiation RPC
// against a discovery address (§6). in is the caller-supplied buffer
// capacity; when the server has more entries than fit, the returned
// overflow count is the total available so the caller can retry once
// with a larger capacity.
type SendTargetsClient interface {
	Get(ctx context.Context, addr Addr, in int) (results []SendTargetsResult, total int, err error)
}

// EventSink is the outbound port discovery events are published
// through (§9 design notes: the core depends on an EventSink, not the
// OS bus directly).
type EventSink interface {
	Publish(subclass string)
}
