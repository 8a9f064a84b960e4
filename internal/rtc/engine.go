package rtc

import "github.com/pion/webrtc/v3"

// ChannelState mirrors the ready state of the engine's data channel.
type ChannelState int

const (
	ChannelStateConnecting ChannelState = iota
	ChannelStateOpen
	ChannelStateClosing
	ChannelStateClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelStateConnecting:
		return "connecting"
	case ChannelStateOpen:
		return "open"
	case ChannelStateClosing:
		return "closing"
	case ChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MediaConstraints selects which media the local offer asks to receive.
// The zero value is a data-only offer.
type MediaConstraints struct {
	OfferToReceiveAudio bool
	OfferToReceiveVideo bool
}

// Engine is the transport engine a PeerConnection negotiates through. It
// performs ICE, DTLS and SCTP; NewPionEngine is the production
// implementation.
type Engine interface {
	CreateOffer(constraints MediaConstraints) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	// AddICECandidate may be called before the remote description is set;
	// the engine buffers such candidates.
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	CreateDataChannel(label string, reliable bool) (DataChannel, error)
	// OnICECandidate registers the handler for locally gathered
	// candidates. A nil candidate marks the end of gathering.
	OnICECandidate(fn func(candidate *webrtc.ICECandidateInit))
	Close() error
}

type DataChannel interface {
	Label() string
	ReadyState() ChannelState
	Send(data []byte) error
	OnOpen(fn func())
	OnClose(fn func())
	OnError(fn func(err error))
	OnMessage(fn func(data []byte))
	Close() error
}
