// Package link normalises raw discovery notifications into the small set of
// events the session coordinator reacts to.
package link

import (
	"github.com/rudransh-shrivastava/meshchat/internal/discovery"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/samber/lo"
)

type Event interface {
	event()
}

type PeersUpdated struct {
	Peers []peer.Peer
}

// BecameHost is emitted when this device coordinates the link. PeerAddress
// is the other side's socket address when the collaborator knows it.
type BecameHost struct {
	PeerAddress string
}

type BecameClient struct {
	RemoteAddress string
}

// LinkLost follows an established link going down.
type LinkLost struct{}

type AdapterChanged struct {
	Enabled bool
}

func (PeersUpdated) event()   {}
func (BecameHost) event()     {}
func (BecameClient) event()   {}
func (LinkLost) event()       {}
func (AdapterChanged) event() {}

// Tracker is a synchronous translator with a single owner. It remembers
// whether it announced an established link so that link-down notifications
// arriving during negotiation are swallowed.
type Tracker struct {
	established bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Translate maps one notification to at most one event. The second return
// value is false when the notification produces nothing.
func (t *Tracker) Translate(n discovery.Notification) (Event, bool) {
	switch n := n.(type) {
	case discovery.PeerListChanged:
		return PeersUpdated{Peers: toPeers(n.Peers)}, true

	case discovery.LinkStateChanged:
		if !n.Connected {
			if !t.established {
				return nil, false
			}
			t.established = false
			return LinkLost{}, true
		}
		if n.IsCoordinator {
			t.established = true
			return BecameHost{PeerAddress: n.PeerAddress}, true
		}
		if n.CoordinatorAddress == "" {
			// connected as client but the coordinator address is not known
			// yet; a later notification carries it
			return nil, false
		}
		t.established = true
		return BecameClient{RemoteAddress: n.CoordinatorAddress}, true

	case discovery.AdapterStateChanged:
		return AdapterChanged{Enabled: n.Enabled}, true
	}
	return nil, false
}

// Established reports whether the last link event was an establishment.
func (t *Tracker) Established() bool {
	return t.established
}

// Reset forgets the established link, e.g. after the session was torn down
// locally.
func (t *Tracker) Reset() {
	t.established = false
}

func toPeers(raw []discovery.RawPeer) []peer.Peer {
	return lo.Map(raw, func(r discovery.RawPeer, _ int) peer.Peer {
		return peer.Peer{Address: r.Address, Name: r.Name}
	})
}
