package protocol

const (
	DefaultPort          = 8988
	DefaultDiscoveryPort = 8989
	DefaultMaxLineSize   = 64 * 1024
	LineTerminator       = '\n'
	MaxDatagramSize      = 1280
	Marker               = "meshchat/1"
)

type MessageType uint16

const (
	MsgBeacon      MessageType = 0x0050
	MsgLinkRequest MessageType = 0x0060
	MsgLinkAccept  MessageType = 0x0061
	MsgLinkClose   MessageType = 0x0062
)

func (t MessageType) String() string {
	switch t {
	case MsgBeacon:
		return "BEACON"
	case MsgLinkRequest:
		return "LINK_REQUEST"
	case MsgLinkAccept:
		return "LINK_ACCEPT"
	case MsgLinkClose:
		return "LINK_CLOSE"
	default:
		return "UNKNOWN"
	}
}

func (t MessageType) Valid() bool {
	return t.String() != "UNKNOWN"
}
