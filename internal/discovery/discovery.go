// Package discovery defines the contract of the link-layer discovery
// collaborator: it finds nearby devices, forms a link with one of them and
// decides which side coordinates the link.
package discovery

import (
	"context"
	"fmt"
)

//go:generate mockgen -source=discovery.go -destination=mocks/discovery_mock.go -package=mocks -exclude_interfaces=Notification

type Discovery interface {
	StartDiscovery(ctx context.Context) error
	RequestPeers(ctx context.Context) ([]RawPeer, error)
	RequestLinkInfo(ctx context.Context) (LinkInfo, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context) error
	Notifications() <-chan Notification
}

type DeviceStatus int

const (
	StatusAvailable DeviceStatus = iota
	StatusInvited
	StatusConnected
	StatusFailed
	StatusUnavailable
)

func (s DeviceStatus) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusInvited:
		return "invited"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type RawPeer struct {
	Address string
	Name    string
	Status  DeviceStatus
}

// LinkInfo describes the current link. CoordinatorAddress is the socket
// host (optionally host:port) of the coordinator and is only set on the
// non-coordinator side; PeerAddress is its mirror on the coordinator side.
type LinkInfo struct {
	Connected          bool
	IsCoordinator      bool
	CoordinatorAddress string
	PeerAddress        string
}

type Notification interface {
	notification()
}

// PeerListChanged always carries the full current peer set.
type PeerListChanged struct {
	Peers []RawPeer
}

type LinkStateChanged struct {
	Connected          bool
	IsCoordinator      bool
	CoordinatorAddress string
	PeerAddress        string
}

type AdapterStateChanged struct {
	Enabled bool
}

func (PeerListChanged) notification()     {}
func (LinkStateChanged) notification()    {}
func (AdapterStateChanged) notification() {}

// LinkStateFromInfo turns a polled LinkInfo into the notification the
// collaborator would have pushed for it.
func LinkStateFromInfo(info LinkInfo) LinkStateChanged {
	return LinkStateChanged{
		Connected:          info.Connected,
		IsCoordinator:      info.IsCoordinator,
		CoordinatorAddress: info.CoordinatorAddress,
		PeerAddress:        info.PeerAddress,
	}
}

// Reason codes reported by the collaborator when an action is rejected.
const (
	ReasonError             = 0
	ReasonUnsupported       = 1
	ReasonBusy              = 2
	ReasonNoServiceRequests = 3
)

// Failure is returned when the collaborator rejects an action.
type Failure struct {
	Op   string
	Code int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed: %d (%s)", f.Op, f.Code, ReasonText(f.Code))
}

func ReasonText(code int) string {
	switch code {
	case ReasonError:
		return "internal error"
	case ReasonUnsupported:
		return "unsupported"
	case ReasonBusy:
		return "busy"
	case ReasonNoServiceRequests:
		return "no service requests"
	default:
		return "unknown"
	}
}
