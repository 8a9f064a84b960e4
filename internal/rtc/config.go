package rtc

import (
	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
	"github.com/sirupsen/logrus"
)

// dataChannelID is the stream id of the pre-negotiated channel both peers
// create, so that each side's channel is the same bidirectional stream.
const dataChannelID uint16 = 0

var defaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

// Options configures Create. The zero value is usable.
type Options struct {
	// Configuration for a newly built engine. Nil means an empty
	// configuration: host candidates only.
	Configuration *webrtc.Configuration
	// Constraints for a newly built engine. Nil means DefaultConstraints.
	Constraints *Constraints
	// Media asked for by the local offer. The zero value is data-only.
	Media MediaConstraints
	// Engine is a pre-built engine handle. Nil builds a pion engine from
	// Configuration and Constraints; both are ignored otherwise.
	Engine Engine
	// Reliable selects an ordered channel with unlimited retransmits.
	// The default is unordered with no retransmits.
	Reliable bool
	Logger   *logrus.Logger
}

// Constraints limit what a pion engine may use while gathering
// candidates. They are fixed when the engine is built.
type Constraints struct {
	// IncludeLoopback gathers loopback candidates so that peers on the
	// same host can connect.
	IncludeLoopback bool
	// NetworkTypes restricts gathering to these network types. Empty
	// means pion's default.
	NetworkTypes []webrtc.NetworkType
}

func DefaultConstraints() Constraints {
	return Constraints{IncludeLoopback: true}
}

// DefaultSTUNConfig returns a configuration using the given STUN servers,
// or Google's public ones when none are given.
func DefaultSTUNConfig(servers ...string) webrtc.Configuration {
	if len(servers) == 0 {
		servers = defaultSTUNServers
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: servers},
		},
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
}

func DataChannelInit(reliable bool) *webrtc.DataChannelInit {
	negotiated := true
	id := dataChannelID
	protocolName := protocol.Name

	init := &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
		Protocol:   &protocolName,
	}
	if reliable {
		ordered := true
		init.Ordered = &ordered
	} else {
		ordered := false
		maxRetransmits := uint16(0)
		init.Ordered = &ordered
		init.MaxRetransmits = &maxRetransmits
	}
	return init
}
