// Package peer holds the set of peers the discovery layer currently reports.
package peer

import "fmt"

// Peer is a device reported by the discovery layer. Address is the opaque
// link-layer identity, not a socket address.
type Peer struct {
	Address  string
	Name     string
	LastSeen uint64
}

func (p Peer) String() string {
	if p.Name == "" {
		return p.Address
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Address)
}

// DisplayName falls back to the address for peers that did not report a name.
func (p Peer) DisplayName() string {
	if p.Name == "" {
		return p.Address
	}
	return p.Name
}
