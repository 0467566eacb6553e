// Package events is the subscriber surface of a node: three independent
// streams for status lines, chat messages and peer-list snapshots.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
)

type Direction int

const (
	Received Direction = iota
	Sent
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

type Status struct {
	Text string
	At   time.Time
}

// Message is a chat line in either direction. Ordinal increases by one per
// published message on a bus.
type Message struct {
	ID        uuid.UUID
	Text      string
	Direction Direction
	Remote    string
	Ordinal   uint64
	At        time.Time
}

type PeersUpdated struct {
	Peers []peer.Peer
	At    time.Time
}
