package node

type Role int

const (
	RoleUnestablished Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "unestablished"
	}
}

type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is the node's view of its link. State Established always comes
// with a Host or Client role.
type Session struct {
	Role          Role
	RemoteAddress string
	State         State
}

func (s Session) Established() bool {
	return s.State == StateEstablished
}
