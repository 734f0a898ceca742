// Package allowlist implements the IP-based access policy the accept
// layer applies before handing an accepted socket to a session.
package allowlist

import (
	"fmt"
	"net"
)

// List is an immutable set of CIDR ranges a peer address is checked
// against. The zero value allows nothing.
type List struct {
	nets []*net.IPNet
}

// Parse builds a List from the given CIDR strings. An invalid entry
// is a configuration error, not a runtime one: it is caught at
// startup rather than silently matching nothing.
func Parse(cidrs []string) (*List, error) {
	l := &List{nets: make([]*net.IPNet, 0, len(cidrs))}
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("allowlist: invalid CIDR %q: %w", cidr, err)
		}
		l.nets = append(l.nets, ipNet)
	}
	return l, nil
}

// Allowed reports whether ip falls within any range in the list.
func (l *List) Allowed(ip net.IP) bool {
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
