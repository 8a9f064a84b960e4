package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peerlink/internal/logger"
	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Relay = (*Client)(nil)

type ClientConfig struct {
	// URL of the relay server, e.g. "ws://localhost:8080/".
	URL string
	// ID requested from the server. Empty lets the server assign one.
	ID     string
	Logger *logrus.Logger
}

// Client is a Relay backed by a connection to a relay Server.
type Client struct {
	conn   *websocket.Conn
	id     string
	logger *logrus.Entry

	writeMu sync.Mutex

	mu         sync.Mutex
	routes     routes
	onUnrouted func(from string, msg protocol.Message)

	pongCh    chan struct{}
	peersCh   chan []string
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay server and waits for it to confirm the
// client's id.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", cfg.URL, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logrus.NewEntry(log),
		routes:  make(routes),
		pongCh:  make(chan struct{}, 1),
		peersCh: make(chan []string, 1),
		done:    make(chan struct{}),
	}

	if err := c.handshake(ctx, cfg.ID); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.logger = log.WithField("id", c.id)
	go c.listen()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, requestedID string) error {
	if err := c.write(protocol.Frame{Kind: protocol.FrameHello, From: requestedID}); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading welcome: %w", err)
	}
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		return err
	}

	switch f.Kind {
	case protocol.FrameWelcome:
		c.id = f.To
		return nil
	case protocol.FrameError:
		if f.Error == ErrIDTaken.Error() {
			return fmt.Errorf("%w: %s", ErrIDTaken, requestedID)
		}
		return errors.New(f.Error)
	default:
		return fmt.Errorf("%w: expected welcome, got %s", protocol.ErrMalformed, f.Kind)
	}
}

// ID is the id the relay server knows this client by.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Relay(targetID string, msg protocol.Message) error {
	body, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.write(protocol.Frame{Kind: protocol.FrameRelay, To: targetID, Body: body})
}

func (c *Client) RelayFor(h Handler, remoteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routes.add(h, remoteID)
}

func (c *Client) Unrelay(h Handler, remoteID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes.remove(h, remoteID)
	return nil
}

// OnUnrouted sets the hook receiving messages from senders with no
// registered handler. A listening peer uses it to accept offers.
func (c *Client) OnUnrouted(fn func(from string, msg protocol.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnrouted = fn
}

func (c *Client) Ping(ctx context.Context) error {
	// a pong left over from a timed-out ping would answer this one
	select {
	case <-c.pongCh:
	default:
	}

	if err := c.write(protocol.Frame{Kind: protocol.FramePing}); err != nil {
		return err
	}

	select {
	case <-c.pongCh:
		return nil
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Peers asks the relay server which peers are connected.
func (c *Client) Peers(ctx context.Context) ([]string, error) {
	select {
	case <-c.peersCh:
	default:
	}

	if err := c.write(protocol.Frame{Kind: protocol.FramePeers}); err != nil {
		return nil, err
	}

	select {
	case peers := <-c.peersCh:
		return peers, nil
	case <-c.done:
		return nil, ErrNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(f protocol.Frame) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	data, err := protocol.EncodeFrame(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Client) listen() {
	defer func() {
		c.closeOnce.Do(func() {
			close(c.done)
			_ = c.conn.Close()
		})
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.WithError(err).Warn("Relay connection lost")
			}
			return
		}

		f, err := protocol.DecodeFrame(data)
		if err != nil {
			c.logger.WithError(err).Warn("Dropping malformed frame")
			continue
		}

		switch f.Kind {
		case protocol.FrameRelay:
			msg, err := protocol.Decode(f.Body)
			if err != nil {
				c.dispatchMalformed(f.From, err)
				continue
			}
			c.dispatch(f.From, msg)

		case protocol.FramePong:
			select {
			case c.pongCh <- struct{}{}:
			default:
			}

		case protocol.FramePeers:
			select {
			case c.peersCh <- f.Peers:
			default:
			}

		case protocol.FrameError:
			c.logger.WithField("target", f.To).Warnf("Relay error: %s", f.Error)

		default:
			c.logger.WithField("kind", f.Kind).Warn("Unhandled frame kind")
		}
	}
}

// dispatchMalformed reports an undecodable message to the handler routed
// for its sender, if that handler accepts such reports.
func (c *Client) dispatchMalformed(from string, err error) {
	c.mu.Lock()
	h, ok := c.routes[from]
	c.mu.Unlock()

	if mh, accepts := h.(MalformedHandler); ok && accepts {
		mh.HandleMalformed(err)
		return
	}
	c.logger.WithError(err).WithField("from", from).Warn("Dropping malformed message")
}

func (c *Client) dispatch(from string, msg protocol.Message) {
	c.mu.Lock()
	h, ok := c.routes[from]
	unrouted := c.onUnrouted
	c.mu.Unlock()

	if ok {
		h.HandleMessage(msg)
		return
	}
	if unrouted != nil {
		unrouted(from, msg)
		return
	}
	c.logger.WithFields(logrus.Fields{"from": from, "type": msg.Type}).Warn("No handler for message")
}
