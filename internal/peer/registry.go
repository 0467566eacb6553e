package peer

import "github.com/samber/lo"

// Registry is the current peer set. Every update is a full snapshot:
// ReplaceAll is the only mutator.
//
// Registry is not safe for concurrent mutation; it has a single owner.
type Registry struct {
	peers    []Peer
	sequence uint64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// ReplaceAll swaps the whole peer set. Duplicate addresses collapse into one
// entry that keeps the first position and the last reported fields. Every
// stored peer is stamped with the snapshot's sequence number.
func (r *Registry) ReplaceAll(peers []Peer) {
	r.sequence++

	index := make(map[string]int, len(peers))
	next := make([]Peer, 0, len(peers))
	for _, p := range peers {
		p.LastSeen = r.sequence
		if i, ok := index[p.Address]; ok {
			next[i] = p
			continue
		}
		index[p.Address] = len(next)
		next = append(next, p)
	}

	r.peers = next
}

// All returns a copy of the current peer set in reported order.
func (r *Registry) All() []Peer {
	out := make([]Peer, len(r.peers))
	copy(out, r.peers)
	return out
}

func (r *Registry) First() (Peer, bool) {
	if len(r.peers) == 0 {
		return Peer{}, false
	}
	return r.peers[0], true
}

func (r *Registry) Lookup(address string) (Peer, bool) {
	return lo.Find(r.peers, func(p Peer) bool { return p.Address == address })
}

func (r *Registry) Len() int {
	return len(r.peers)
}

// Sequence is the number of snapshots applied so far.
func (r *Registry) Sequence() uint64 {
	return r.sequence
}

// Names lists display names in registry order.
func Names(peers []Peer) []string {
	return lo.Map(peers, func(p Peer, _ int) string { return p.DisplayName() })
}
