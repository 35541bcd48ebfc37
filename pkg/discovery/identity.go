package discovery

import (
	"fmt"
	"net"
	"os"
	"time"
)

// BootstrapIdentity ensures the store carries an initiator name, an
// alias, and a CHAP record, constructing defaults on first boot (§4.H).
// The clock used for the default name is overridable for tests via
// bootstrapClock below.
func BootstrapIdentity(store Store) error {
	if _, ok := store.InitiatorNameGet(); !ok {
		name, err := defaultInitiatorName()
		if err != nil {
			return err
		}
		if err := store.InitiatorNameSet(name); err != nil {
			return err
		}
	}

	name, _ := store.InitiatorNameGet()

	if alias, ok := store.AliasNameGet(); !ok || alias == "" {
		host, err := os.Hostname()
		if err == nil && host != "" {
			if err := store.AliasNameSet(host); err != nil {
				return err
			}
		}
	}

	if _, ok := store.ChapGet(name); !ok {
		if err := store.ChapSet(name, ChapRecord{User: name, Secret: nil}); err != nil {
			return err
		}
	}

	return nil
}

// bootstrapClock is overridden in tests to make default name
// generation deterministic.
var bootstrapClock = time.Now

// defaultInitiatorName constructs `iqn.1986-03.com.sun:01:<mac-hex>.<time-hex>`
// from the first interface with a non-empty hardware address and the
// current wall clock, matching iscsid_set_default_initiator_node_settings.
func defaultInitiatorName() (string, error) {
	mac, err := firstMACAddr()
	if err != nil {
		return "", newErr(ErrStoreUnavailable, "identity.default_name", err)
	}
	ts := bootstrapClock().Unix()
	return fmt.Sprintf("iqn.1986-03.com.sun:01:%s.%x", macHex(mac), ts), nil
}

func macHex(mac net.HardwareAddr) string {
	s := ""
	for _, b := range mac {
		s += fmt.Sprintf("%02x", b)
	}
	return s
}

func firstMACAddr() (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) > 0 {
			return iface.HardwareAddr, nil
		}
	}
	return nil, newErr(ErrStoreUnavailable, "identity.first_mac", nil)
}
