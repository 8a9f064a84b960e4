// Package relay delivers negotiation messages between peers that cannot yet
// reach each other directly.
package relay

import (
	"errors"

	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
)

var (
	ErrIDTaken      = errors.New("peer id already connected")
	ErrNotConnected = errors.New("not connected to relay")
	ErrRouteTaken   = errors.New("remote id already routed to another handler")
	ErrUnknownPeer  = errors.New("unknown peer")
)

// Handler receives the messages a relay routes for one remote peer.
// HandleMessage must not block for long: it runs on the relay's dispatch
// path, which is shared by every peer.
type Handler interface {
	HandleMessage(msg protocol.Message)
}

// MalformedHandler is implemented by handlers that want to hear about
// messages from their remote peer that could not be decoded. Without it
// such messages are logged and dropped.
type MalformedHandler interface {
	HandleMalformed(err error)
}

// Relay sends messages to peers by id and routes inbound messages from a
// remote id to the Handler registered for it.
type Relay interface {
	Relay(targetID string, msg protocol.Message) error
	RelayFor(h Handler, remoteID string) error
	Unrelay(h Handler, remoteID string) error
}

// routes is the routing table shared by the Relay implementations.
type routes map[string]Handler

func (r routes) add(h Handler, remoteID string) error {
	if existing, ok := r[remoteID]; ok {
		if existing == h {
			return nil
		}
		return ErrRouteTaken
	}
	r[remoteID] = h
	return nil
}

func (r routes) remove(h Handler, remoteID string) {
	if existing, ok := r[remoteID]; ok && existing == h {
		delete(r, remoteID)
	}
}
