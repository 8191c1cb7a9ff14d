package topology

import "net/netip"

// SameSubnet reports whether two addresses fall into the same IPv4 /16.
// IPv6 or mixed-family pairs are always treated as distinct, as are
// addresses that do not parse.
func SameSubnet(a, b string) bool {
	addrA, err := netip.ParseAddr(a)
	if err != nil {
		return false
	}
	addrB, err := netip.ParseAddr(b)
	if err != nil {
		return false
	}
	addrA, addrB = addrA.Unmap(), addrB.Unmap()
	if !addrA.Is4() || !addrB.Is4() {
		return false
	}

	prefix, err := addrA.Prefix(16)
	if err != nil {
		return false
	}
	return prefix.Contains(addrB)
}
