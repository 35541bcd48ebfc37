package discovery

// NormalizeAddr converts a (family-size, raw bytes, port) triple into a
// canonical Addr. insize must be 4 (IPv4) or 16 (IPv6); any other size
// is a BadAddress error. All producers of addresses that ever enter the
// registry must funnel through this function, since the registry
// compares addresses byte-wise.
func NormalizeAddr(insize int, raw []byte, port uint16) (Addr, error) {
	switch insize {
	case 4:
		if len(raw) < 4 {
			return Addr{}, newErr(ErrBadAddress, "address.normalize", nil)
		}
		var a Addr
		a.Family = FamilyV4
		copy(a.Bytes[:4], raw[:4])
		a.Port = port
		return a, nil
	case 16:
		if len(raw) < 16 {
			return Addr{}, newErr(ErrBadAddress, "address.normalize", nil)
		}
		var a Addr
		a.Family = FamilyV6
		copy(a.Bytes[:16], raw[:16])
		a.Port = port
		return a, nil
	default:
		return Addr{}, newErr(ErrBadAddress, "address.normalize", nil)
	}
}
