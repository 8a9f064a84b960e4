package rtc

import (
	"fmt"
	"sync"

	"github.com/rudransh-shrivastava/peerlink/internal/relay"
)

// Connection is the application-facing side of a peer connection. It
// exposes Send and the open, close, error and message events; the
// transport behind it is attached when a PeerConnection wraps it.
type Connection struct {
	mu      sync.RWMutex
	send    func(data []byte) error
	factory func(r relay.Relay, remoteID string, opts *Options) (*PeerConnection, error)

	onOpen    []func()
	onClose   []func()
	onError   []func(err error)
	onMessage []func(data []byte)
}

func NewConnection() *Connection {
	return &Connection{}
}

// Send writes data to the peer. It fails with ErrNotReady until the data
// channel is open and with ErrClosed once it starts closing.
func (c *Connection) Send(data []byte) error {
	c.mu.RLock()
	send := c.send
	c.mu.RUnlock()

	if send == nil {
		return fmt.Errorf("%w: no transport attached", ErrNotReady)
	}
	return send(data)
}

func (c *Connection) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = append(c.onOpen, fn)
}

func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// OnError subscribes to asynchronous failures. Negotiation errors wrap
// ErrNegotiation.
func (c *Connection) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

func (c *Connection) OnMessage(fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// Dispatch hands inbound data to the message subscribers in the order
// they subscribed.
func (c *Connection) Dispatch(data []byte) {
	c.mu.RLock()
	subs := c.onMessage
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(data)
	}
}

// CreatePeerConnection starts another negotiation session with the same
// factory that created this connection's transport.
func (c *Connection) CreatePeerConnection(r relay.Relay, remoteID string, opts *Options) (*PeerConnection, error) {
	c.mu.RLock()
	factory := c.factory
	c.mu.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("%w: connection has no peer connection factory", ErrConfiguration)
	}
	return factory(r, remoteID, opts)
}

func (c *Connection) attach(send func([]byte) error, factory func(relay.Relay, string, *Options) (*PeerConnection, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.send = send
	c.factory = factory
}

func (c *Connection) emitOpen() {
	c.mu.RLock()
	subs := c.onOpen
	c.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

func (c *Connection) emitClose() {
	c.mu.RLock()
	subs := c.onClose
	c.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

func (c *Connection) emitError(err error) {
	c.mu.RLock()
	subs := c.onError
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(err)
	}
}
