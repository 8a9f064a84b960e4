package protocol

import "fmt"

// Name labels the data channel and is advertised as its subprotocol.
const Name = "peerlink"

type MessageType uint16

const (
	MsgOffer        MessageType = 0x0070
	MsgAnswer       MessageType = 0x0071
	MsgICECandidate MessageType = 0x0072
)

func (t MessageType) String() string {
	switch t {
	case MsgOffer:
		return "OFFER"
	case MsgAnswer:
		return "ANSWER"
	case MsgICECandidate:
		return "ICE_CANDIDATE"
	default:
		return "UNKNOWN"
	}
}

func (t MessageType) MarshalText() ([]byte, error) {
	if t.String() == "UNKNOWN" {
		return nil, fmt.Errorf("%w: unknown message type 0x%04x", ErrMalformed, uint16(t))
	}
	return []byte(t.String()), nil
}

func (t *MessageType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "OFFER":
		*t = MsgOffer
	case "ANSWER":
		*t = MsgAnswer
	case "ICE_CANDIDATE":
		*t = MsgICECandidate
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrMalformed, text)
	}
	return nil
}

// FrameKind tags the frames exchanged between relay clients and the relay
// server.
type FrameKind string

const (
	FrameError   FrameKind = "error"
	FrameHello   FrameKind = "hello"
	FramePeers   FrameKind = "peers"
	FramePing    FrameKind = "ping"
	FramePong    FrameKind = "pong"
	FrameRelay   FrameKind = "relay"
	FrameWelcome FrameKind = "welcome"
)
