package node

import "errors"

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrBindFailure        = errors.New("bind failure")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrNotStarted         = errors.New("node not started")
	ErrAlreadyStarted     = errors.New("node already started")
)
