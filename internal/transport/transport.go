// Package transport carries chat lines over TCP: an Endpoint that owns the
// single listening socket and a Sender that delivers one line per
// short-lived connection.
package transport

import "errors"

var (
	ErrClosed         = errors.New("transport: endpoint closed")
	ErrAlreadyStarted = errors.New("transport: endpoint already started")
)

// Inbound is one received line together with the connection it came from.
type Inbound struct {
	Text   string
	Remote string
}
