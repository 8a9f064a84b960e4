package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
)

// CreateOffer starts negotiation from this side: the offer is generated,
// set as the local description and relayed. Failures, including a second
// offer, are reported as error events.
func (pc *PeerConnection) CreateOffer() {
	pc.enqueue(pc.offer)
}

// CreateAnswer accepts a remote offer and relays the answer.
func (pc *PeerConnection) CreateAnswer(remote webrtc.SessionDescription) {
	pc.enqueue(func() { pc.answer(remote) })
}

// ReceiveAnswer completes a negotiation this side offered.
func (pc *PeerConnection) ReceiveAnswer(desc webrtc.SessionDescription) {
	pc.enqueue(func() { pc.acceptAnswer(desc) })
}

// AddICECandidate hands a remote candidate to the engine.
func (pc *PeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) {
	pc.enqueue(func() { pc.addCandidate(candidate) })
}

// HandleMessage dispatches a message the relay routed from the remote
// peer. Malformed messages become error events.
func (pc *PeerConnection) HandleMessage(msg protocol.Message) {
	pc.enqueue(func() { pc.handle(msg) })
}

// HandleMalformed reports a message from the remote peer that the relay
// could not decode.
func (pc *PeerConnection) HandleMalformed(err error) {
	pc.enqueue(func() { pc.fail(fmt.Errorf("%w: %w", ErrNegotiation, err)) })
}

func (pc *PeerConnection) handle(msg protocol.Message) {
	switch msg.Type {
	case protocol.MsgOffer:
		desc, err := msg.Description()
		if err != nil {
			pc.fail(fmt.Errorf("%w: %w", ErrNegotiation, err))
			return
		}
		pc.answer(desc)
	case protocol.MsgAnswer:
		desc, err := msg.Description()
		if err != nil {
			pc.fail(fmt.Errorf("%w: %w", ErrNegotiation, err))
			return
		}
		pc.acceptAnswer(desc)
	case protocol.MsgICECandidate:
		candidate, err := msg.Candidate()
		if err != nil {
			pc.fail(fmt.Errorf("%w: %w", ErrNegotiation, err))
			return
		}
		pc.addCandidate(candidate)
	default:
		pc.fail(fmt.Errorf("%w: unexpected message type %s", ErrNegotiation, msg.Type))
	}
}

func (pc *PeerConnection) offer() {
	if pc.offered {
		pc.fail(fmt.Errorf("%w: offer already created", ErrNegotiation))
		return
	}
	pc.offered = true

	desc, err := pc.engine.CreateOffer(pc.media)
	if err != nil {
		pc.fail(fmt.Errorf("%w: creating offer: %w", ErrNegotiation, err))
		return
	}
	if err := pc.engine.SetLocalDescription(desc); err != nil {
		pc.fail(fmt.Errorf("%w: setting local offer: %w", ErrNegotiation, err))
		return
	}
	pc.send(protocol.NewOffer(desc))
}

func (pc *PeerConnection) answer(remote webrtc.SessionDescription) {
	if err := validateDescription(remote, webrtc.SDPTypeOffer); err != nil {
		pc.fail(err)
		return
	}
	if err := pc.engine.SetRemoteDescription(remote); err != nil {
		pc.fail(fmt.Errorf("%w: setting remote offer: %w", ErrNegotiation, err))
		return
	}

	desc, err := pc.engine.CreateAnswer()
	if err != nil {
		pc.fail(fmt.Errorf("%w: creating answer: %w", ErrNegotiation, err))
		return
	}
	if err := pc.engine.SetLocalDescription(desc); err != nil {
		pc.fail(fmt.Errorf("%w: setting local answer: %w", ErrNegotiation, err))
		return
	}
	pc.send(protocol.NewAnswer(desc))
}

func (pc *PeerConnection) acceptAnswer(desc webrtc.SessionDescription) {
	if err := validateDescription(desc, webrtc.SDPTypeAnswer); err != nil {
		pc.fail(err)
		return
	}
	if err := pc.engine.SetRemoteDescription(desc); err != nil {
		pc.fail(fmt.Errorf("%w: setting remote answer: %w", ErrNegotiation, err))
		return
	}
	pc.entry().Debug("Remote answer set")
}

func (pc *PeerConnection) addCandidate(candidate webrtc.ICECandidateInit) {
	if candidate.Candidate == "" {
		pc.fail(fmt.Errorf("%w: empty candidate", ErrNegotiation))
		return
	}
	if err := pc.engine.AddICECandidate(candidate); err != nil {
		pc.fail(fmt.Errorf("%w: adding candidate: %w", ErrNegotiation, err))
	}
}

// onNetworkPathDiscovered relays each locally gathered candidate. The end
// of gathering is not signalled to the peer.
func (pc *PeerConnection) onNetworkPathDiscovered(candidate *webrtc.ICECandidateInit) {
	if candidate == nil || candidate.Candidate == "" {
		return
	}
	c := *candidate
	pc.enqueue(func() { pc.send(protocol.NewICECandidate(c)) })
}

func validateDescription(desc webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc.Type != want {
		return fmt.Errorf("%w: expected %s description, got %s", ErrNegotiation, want, desc.Type)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty %s description", ErrNegotiation, want)
	}
	return nil
}

func (pc *PeerConnection) send(msg protocol.Message, err error) {
	if pc.ctx.Err() != nil {
		return
	}
	if err != nil {
		pc.fail(fmt.Errorf("%w: %w", ErrNegotiation, err))
		return
	}

	r, remoteID := pc.binding()
	if err := r.Relay(remoteID, msg); err != nil {
		pc.fail(fmt.Errorf("%w: relaying %s: %w", ErrNegotiation, msg.Type, err))
		return
	}
	pc.log.WithField("peer", remoteID).WithField("type", msg.Type).Debug("Relayed negotiation message")
}

func (pc *PeerConnection) fail(err error) {
	if pc.ctx.Err() != nil {
		return
	}
	pc.entry().WithError(err).Warn("Negotiation failed")
	pc.conn.emitError(err)
}

// enqueue appends task to the connection's FIFO. It never blocks.
func (pc *PeerConnection) enqueue(task func()) {
	if pc.ctx.Err() != nil {
		return
	}
	pc.queueMu.Lock()
	pc.queue = append(pc.queue, task)
	pc.queueMu.Unlock()

	select {
	case pc.wake <- struct{}{}:
	default:
	}
}

// run executes queued tasks one at a time until the connection closes.
func (pc *PeerConnection) run() {
	for {
		select {
		case <-pc.ctx.Done():
			return
		case <-pc.wake:
		}

		for {
			pc.queueMu.Lock()
			if len(pc.queue) == 0 {
				pc.queueMu.Unlock()
				break
			}
			task := pc.queue[0]
			pc.queue[0] = nil
			pc.queue = pc.queue[1:]
			pc.queueMu.Unlock()

			if pc.ctx.Err() != nil {
				return
			}
			task()
		}
	}
}
