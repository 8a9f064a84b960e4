package rtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
)

// Compile-time interface checks.
var (
	_ Engine      = (*pionEngine)(nil)
	_ DataChannel = (*pionChannel)(nil)
)

type pionEngine struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

// NewPionEngine builds a pion PeerConnection under the given constraints.
func NewPionEngine(config webrtc.Configuration, constraints Constraints) (Engine, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(constraints.IncludeLoopback)
	if len(constraints.NetworkTypes) > 0 {
		settingEngine.SetNetworkTypes(constraints.NetworkTypes)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return WrapPionEngine(pc), nil
}

// WrapPionEngine adapts an existing pion PeerConnection.
func WrapPionEngine(pc *webrtc.PeerConnection) Engine {
	return &pionEngine{pc: pc}
}

func (e *pionEngine) CreateOffer(constraints MediaConstraints) (webrtc.SessionDescription, error) {
	recvonly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if constraints.OfferToReceiveAudio {
		if _, err := e.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvonly); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("failed to add audio transceiver: %w", err)
		}
	}
	if constraints.OfferToReceiveVideo {
		if _, err := e.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvonly); err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("failed to add video transceiver: %w", err)
		}
	}
	return e.pc.CreateOffer(nil)
}

func (e *pionEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	return e.pc.CreateAnswer(nil)
}

func (e *pionEngine) SetLocalDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetLocalDescription(desc)
}

// SetRemoteDescription sets desc and then hands over the candidates that
// arrived before it.
func (e *pionEngine) SetRemoteDescription(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	pending := e.pending
	e.pending = nil
	for _, candidate := range pending {
		if err := e.pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("failed to add buffered candidate: %w", err)
		}
	}
	return nil
}

func (e *pionEngine) LocalDescription() *webrtc.SessionDescription {
	return e.pc.LocalDescription()
}

func (e *pionEngine) RemoteDescription() *webrtc.SessionDescription {
	return e.pc.RemoteDescription()
}

func (e *pionEngine) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pc.RemoteDescription() == nil {
		e.pending = append(e.pending, candidate)
		return nil
	}
	return e.pc.AddICECandidate(candidate)
}

func (e *pionEngine) CreateDataChannel(label string, reliable bool) (DataChannel, error) {
	dc, err := e.pc.CreateDataChannel(label, DataChannelInit(reliable))
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	return &pionChannel{dc: dc}, nil
}

func (e *pionEngine) OnICECandidate(fn func(candidate *webrtc.ICECandidateInit)) {
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

func (e *pionEngine) Close() error {
	return e.pc.Close()
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionChannel) Label() string {
	return c.dc.Label()
}

func (c *pionChannel) ReadyState() ChannelState {
	switch c.dc.ReadyState() {
	case webrtc.DataChannelStateOpen:
		return ChannelStateOpen
	case webrtc.DataChannelStateClosing:
		return ChannelStateClosing
	case webrtc.DataChannelStateClosed:
		return ChannelStateClosed
	default:
		// connecting, or unknown before pion assigns a state
		return ChannelStateConnecting
	}
}

func (c *pionChannel) Send(data []byte) error {
	return c.dc.Send(data)
}

func (c *pionChannel) OnOpen(fn func()) {
	c.dc.OnOpen(fn)
}

func (c *pionChannel) OnClose(fn func()) {
	c.dc.OnClose(fn)
}

func (c *pionChannel) OnError(fn func(err error)) {
	c.dc.OnError(fn)
}

func (c *pionChannel) OnMessage(fn func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *pionChannel) Close() error {
	return c.dc.Close()
}
