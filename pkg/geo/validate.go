package geo

import "net/netip"

// ValidAddress reports whether s is an IPv4 or IPv6 literal in standard
// textual form. No name resolution takes place. Zoned IPv6 addresses
// (fe80::1%eth0) are rejected: a zone only has meaning on the local host.
func ValidAddress(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return addr.Zone() == ""
}
