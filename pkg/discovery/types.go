// Package discovery implements the iSCSI initiator discovery core: the
// four concurrent discovery methods, the session registry, the event
// barrier that brackets every discovery cycle, and the dispatcher that
// the CLI and the iSNS client drive.
package discovery

import (
	"bytes"
	"fmt"
)

// Method identifies a discovery method. It is also used as a bitmask,
// since several methods may be enabled at once.
type Method uint8

const (
	MethodUnknown Method = 0
	MethodStatic  Method = 1 << iota
	MethodSendTargets
	MethodSLP
	MethodISNS
)

// AllMethods is the full method mask; the event barrier is complete
// once every bit here has an emitted end event.
const AllMethods = MethodStatic | MethodSendTargets | MethodSLP | MethodISNS

func (m Method) String() string {
	switch m {
	case MethodUnknown:
		return "unknown"
	case MethodStatic:
		return "static"
	case MethodSendTargets:
		return "sendtargets"
	case MethodSLP:
		return "slp"
	case MethodISNS:
		return "isns"
	default:
		return fmt.Sprintf("method(%#x)", uint8(m))
	}
}

// methods is the fixed iteration order of the four worker table rows,
// mirroring iscsid_thr[] in the original C table.
var methods = []Method{MethodStatic, MethodSendTargets, MethodSLP, MethodISNS}

// AddrFamily is the address family of a normalized Addr.
type AddrFamily uint8

const (
	FamilyV4 AddrFamily = iota
	FamilyV6
)

// Addr is the canonical form produced by the address normalizer (§4.A).
// Equality between two Addr values is byte-exact, matching the
// bcmp-based comparisons the registry performs.
type Addr struct {
	Family AddrFamily
	Bytes  [16]byte // only the first 4 bytes are meaningful for FamilyV4
	Port   uint16
}

// Equal reports whether a and b denote the same canonical address.
func (a Addr) Equal(b Addr) bool {
	if a.Family != b.Family || a.Port != b.Port {
		return false
	}
	n := 4
	if a.Family == FamilyV6 {
		n = 16
	}
	return bytes.Equal(a.Bytes[:n], b.Bytes[:n])
}

func (a Addr) String() string {
	if a.Family == FamilyV4 {
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Bytes[0], a.Bytes[1], a.Bytes[2], a.Bytes[3], a.Port)
	}
	return fmt.Sprintf("[%x]:%d", a.Bytes[:16], a.Port)
}

// MaxTargetNameLen bounds TargetIdentity, matching the iSCSI name
// length bound (ISCSI_MAX_NAME_LEN truncated of its terminator).
const MaxTargetNameLen = 223

// SessionKey is the composite identity of a Session: target name,
// discovery method, discovery address, and session index (isid).
type SessionKey struct {
	TargetName string
	Method     Method
	DiscAddr   Addr
	ISID       int
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", k.TargetName, k.Method, k.DiscAddr, k.ISID)
}

// SessionState is the lifecycle state of a Session as reported by the
// transport engine; the core treats it as opaque beyond these two
// values.
type SessionState uint8

const (
	SessionOnline SessionState = iota
	SessionDestroyable
)

// Session is the entity owned by the registry. At most one Session
// exists per SessionKey at any time (§8 invariant).
type Session struct {
	Key          SessionKey
	TargetAddr   Addr
	DiscoveredBy Method
	State        SessionState

	handle     interface{} // transport.SessionHandle, opaque to this package's callers
	connHandle interface{} // transport.ConnHandle of the active connection
}

// ConfiguredSessions is the resolved (count, bound) pair for a target
// or the initiator default.
type ConfiguredSessions struct {
	Count int
	Bound bool
}

// DefaultConfiguredSessions is returned when neither a per-target nor
// a per-initiator record exists.
var DefaultConfiguredSessions = ConfiguredSessions{Count: 1, Bound: true}
