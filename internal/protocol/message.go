package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

var ErrMalformed = errors.New("malformed message")

// Message is a negotiation message. On the wire it is the JSON tuple
// [type, payload] where payload is a session description or an ICE
// candidate produced by the transport engine.
type Message struct {
	Type    MessageType
	Payload json.RawMessage
}

func NewOffer(desc webrtc.SessionDescription) (Message, error) {
	return newMessage(MsgOffer, desc)
}

func NewAnswer(desc webrtc.SessionDescription) (Message, error) {
	return newMessage(MsgAnswer, desc)
}

func NewICECandidate(candidate webrtc.ICECandidateInit) (Message, error) {
	return newMessage(MsgICECandidate, candidate)
}

func newMessage(t MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", t, err)
	}
	return Message{Type: t, Payload: data}, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return json.Marshal([]any{m.Type, payload})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("%w: expected [type, payload], got %d elements", ErrMalformed, len(tuple))
	}

	var t MessageType
	if err := json.Unmarshal(tuple[0], &t); err != nil {
		if errors.Is(err, ErrMalformed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m.Type = t
	m.Payload = tuple[1]
	return nil
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		if errors.Is(err, ErrMalformed) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// Description decodes the session description carried by an OFFER or
// ANSWER and checks that its SDP type matches the message type.
func (m Message) Description() (webrtc.SessionDescription, error) {
	var want webrtc.SDPType
	switch m.Type {
	case MsgOffer:
		want = webrtc.SDPTypeOffer
	case MsgAnswer:
		want = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s carries no session description", ErrMalformed, m.Type)
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(m.Payload, &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if desc.Type != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %s carries a %s description", ErrMalformed, m.Type, desc.Type)
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty sdp", ErrMalformed)
	}
	return desc, nil
}

func (m Message) Candidate() (webrtc.ICECandidateInit, error) {
	if m.Type != MsgICECandidate {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: %s carries no candidate", ErrMalformed, m.Type)
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(m.Payload, &candidate); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if candidate.Candidate == "" {
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: empty candidate", ErrMalformed)
	}
	return candidate, nil
}
