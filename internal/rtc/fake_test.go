package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
)

var errFakeEngine = errors.New("fake engine failure")

type fakeEngine struct {
	mu          sync.Mutex
	local       *webrtc.SessionDescription
	remote      *webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	constraints []MediaConstraints
	onCandidate func(*webrtc.ICECandidateInit)
	channel     *fakeChannel
	closed      bool

	// gather is emitted through OnICECandidate when a local description
	// is set, as a real engine starts gathering then.
	gather []*webrtc.ICECandidateInit

	failChannel bool
	failRemote  bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{channel: &fakeChannel{state: ChannelStateConnecting}}
}

func (e *fakeEngine) CreateOffer(constraints MediaConstraints) (webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constraints = append(e.constraints, constraints)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (e *fakeEngine) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (e *fakeEngine) SetLocalDescription(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	e.local = &desc
	gather := e.gather
	fn := e.onCandidate
	e.mu.Unlock()

	if fn != nil {
		for _, c := range gather {
			fn(c)
		}
	}
	return nil
}

func (e *fakeEngine) SetRemoteDescription(desc webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failRemote {
		return errFakeEngine
	}
	e.remote = &desc
	return nil
}

func (e *fakeEngine) LocalDescription() *webrtc.SessionDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local
}

func (e *fakeEngine) RemoteDescription() *webrtc.SessionDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote
}

func (e *fakeEngine) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = append(e.candidates, candidate)
	return nil
}

func (e *fakeEngine) CreateDataChannel(label string, reliable bool) (DataChannel, error) {
	if e.failChannel {
		return nil, errFakeEngine
	}
	e.channel.label = label
	e.channel.reliable = reliable
	return e.channel, nil
}

func (e *fakeEngine) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCandidate = fn
}

// discover simulates the engine finding a local network path.
func (e *fakeEngine) discover(candidate *webrtc.ICECandidateInit) {
	e.mu.Lock()
	fn := e.onCandidate
	e.mu.Unlock()
	fn(candidate)
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) remoteCandidates() []webrtc.ICECandidateInit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), e.candidates...)
}

type fakeChannel struct {
	mu       sync.Mutex
	label    string
	reliable bool
	state    ChannelState
	sent     [][]byte
	closed   bool

	onOpen    func()
	onClose   func()
	onError   func(error)
	onMessage func([]byte)
}

func (c *fakeChannel) Label() string {
	return c.label
}

func (c *fakeChannel) ReadyState() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) setState(s ChannelState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) OnOpen(fn func())          { c.onOpen = fn }
func (c *fakeChannel) OnClose(fn func())         { c.onClose = fn }
func (c *fakeChannel) OnError(fn func(error))    { c.onError = fn }
func (c *fakeChannel) OnMessage(fn func([]byte)) { c.onMessage = fn }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = ChannelStateClosed
	return nil
}
