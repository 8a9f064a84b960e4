package relay

import (
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
)

// Compile-time interface check.
var _ Relay = (*Endpoint)(nil)

// Hub is an in-process relay. Endpoints attached to the same Hub exchange
// messages without a network; every message still goes through the wire
// encoding so that payloads behave as they would over a relay server.
type Hub struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

func NewHub() *Hub {
	return &Hub{endpoints: make(map[string]*Endpoint)}
}

// Endpoint returns the endpoint for localID, creating it on first use.
func (h *Hub) Endpoint(localID string) *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ep, ok := h.endpoints[localID]; ok {
		return ep
	}
	ep := &Endpoint{hub: h, id: localID, routes: make(routes)}
	h.endpoints[localID] = ep
	return ep
}

func (h *Hub) lookup(id string) (*Endpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ep, ok := h.endpoints[id]
	return ep, ok
}

// Endpoint is one peer's view of a Hub.
type Endpoint struct {
	hub *Hub
	id  string

	mu         sync.Mutex
	routes     routes
	onUnrouted func(from string, msg protocol.Message)
	sent       int
}

func (e *Endpoint) ID() string {
	return e.id
}

func (e *Endpoint) Relay(targetID string, msg protocol.Message) error {
	target, ok := e.hub.lookup(targetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, targetID)
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	decoded, err := protocol.Decode(data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.sent++
	e.mu.Unlock()

	target.deliver(e.id, decoded)
	return nil
}

func (e *Endpoint) RelayFor(h Handler, remoteID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routes.add(h, remoteID)
}

func (e *Endpoint) Unrelay(h Handler, remoteID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes.remove(h, remoteID)
	return nil
}

// OnUnrouted sets the hook receiving messages from senders with no
// registered handler.
func (e *Endpoint) OnUnrouted(fn func(from string, msg protocol.Message)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onUnrouted = fn
}

// Routes returns the number of handlers registered on this endpoint.
func (e *Endpoint) Routes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.routes)
}

// Handler returns the handler routed for remoteID, if any.
func (e *Endpoint) Handler(remoteID string) (Handler, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.routes[remoteID]
	return h, ok
}

// Sent returns how many messages this endpoint has relayed.
func (e *Endpoint) Sent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

func (e *Endpoint) deliver(from string, msg protocol.Message) {
	e.mu.Lock()
	h, ok := e.routes[from]
	unrouted := e.onUnrouted
	e.mu.Unlock()

	if ok {
		h.HandleMessage(msg)
		return
	}
	if unrouted != nil {
		unrouted(from, msg)
	}
}
