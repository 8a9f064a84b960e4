package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peerlink/internal/logger"
	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
	"github.com/rudransh-shrivastava/peerlink/internal/relay"
	"github.com/sirupsen/logrus"
)

// Compile-time interface checks.
var (
	_ relay.Handler          = (*PeerConnection)(nil)
	_ relay.MalformedHandler = (*PeerConnection)(nil)
)

// PeerConnection negotiates one data channel with one remote peer through
// a relay, and drives the Connection it wraps.
type PeerConnection struct {
	conn    *Connection
	engine  Engine
	channel DataChannel
	media   MediaConstraints
	log     *logrus.Logger

	bindMu   sync.Mutex
	relay    relay.Relay
	remoteID string

	ctx    context.Context
	cancel context.CancelFunc

	queueMu sync.Mutex
	queue   []func()
	wake    chan struct{}

	closeOnce sync.Once
	offered   bool // only touched on the task loop
}

// Create builds a PeerConnection bound to r for remoteID. Negotiation does
// not start until CreateOffer is called or an offer is relayed in.
func Create(r relay.Relay, remoteID string, opts *Options) (*PeerConnection, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: relay is nil", ErrConfiguration)
	}
	if remoteID == "" {
		return nil, fmt.Errorf("%w: remote id is empty", ErrConfiguration)
	}
	if opts == nil {
		opts = &Options{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	engine := opts.Engine
	if engine == nil {
		config := webrtc.Configuration{}
		if opts.Configuration != nil {
			config = *opts.Configuration
		}
		constraints := DefaultConstraints()
		if opts.Constraints != nil {
			constraints = *opts.Constraints
		}
		var err error
		engine, err = NewPionEngine(config, constraints)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	pc, err := wrap(NewConnection(), engine, opts, log)
	if err != nil {
		engine.Close()
		return nil, err
	}
	if err := pc.SetRelay(r, remoteID); err != nil {
		pc.Close()
		return nil, err
	}
	return pc, nil
}

func wrap(conn *Connection, engine Engine, opts *Options, log *logrus.Logger) (*PeerConnection, error) {
	channel, err := engine.CreateDataChannel(protocol.Name, opts.Reliable)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pc := &PeerConnection{
		conn:    conn,
		engine:  engine,
		channel: channel,
		media:   opts.Media,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
	}

	conn.attach(pc.sendToSocket, Create)
	engine.OnICECandidate(pc.onNetworkPathDiscovered)

	channel.OnOpen(func() {
		pc.entry().Info("Data channel open")
		conn.emitOpen()
	})
	channel.OnClose(func() {
		pc.entry().Info("Data channel closed")
		conn.emitClose()
	})
	channel.OnError(func(err error) {
		pc.entry().WithError(err).Warn("Data channel error")
		conn.emitError(err)
	})
	channel.OnMessage(conn.Dispatch)

	go pc.run()
	return pc, nil
}

// SetRelay moves the connection's registration to r for remoteID. The old
// binding is removed before the new one is added; if adding fails the old
// binding is restored.
func (pc *PeerConnection) SetRelay(r relay.Relay, remoteID string) error {
	if r == nil {
		return fmt.Errorf("%w: relay is nil", ErrConfiguration)
	}
	if remoteID == "" {
		return fmt.Errorf("%w: remote id is empty", ErrConfiguration)
	}

	pc.bindMu.Lock()
	defer pc.bindMu.Unlock()

	// Close cancels before taking bindMu, so a closed connection is seen here.
	if pc.ctx.Err() != nil {
		return ErrClosed
	}

	if pc.relay == r && pc.remoteID == remoteID {
		return nil
	}

	oldRelay, oldID := pc.relay, pc.remoteID
	if oldRelay != nil {
		if err := oldRelay.Unrelay(pc, oldID); err != nil {
			return fmt.Errorf("unbinding %s: %w", oldID, err)
		}
	}

	if err := r.RelayFor(pc, remoteID); err != nil {
		if oldRelay != nil {
			if restoreErr := oldRelay.RelayFor(pc, oldID); restoreErr != nil {
				pc.log.WithError(restoreErr).WithField("peer", oldID).Error("Failed to restore relay binding")
			}
		}
		return fmt.Errorf("%w: binding %s: %w", ErrConfiguration, remoteID, err)
	}

	pc.relay, pc.remoteID = r, remoteID
	pc.log.WithField("peer", remoteID).Debug("Relay bound")
	return nil
}

// sendToSocket gates writes on the channel's current ready state.
func (pc *PeerConnection) sendToSocket(data []byte) error {
	switch state := pc.channel.ReadyState(); state {
	case ChannelStateConnecting:
		return ErrNotReady
	case ChannelStateOpen:
		return pc.channel.Send(data)
	case ChannelStateClosing, ChannelStateClosed:
		return fmt.Errorf("%w: channel is %s", ErrClosed, state)
	default:
		return fmt.Errorf("%w: channel state %d", ErrClosed, state)
	}
}

// Close stops negotiation, unregisters from the relay and closes the
// channel and engine. Tasks still queued are dropped.
func (pc *PeerConnection) Close() error {
	var err error
	pc.closeOnce.Do(func() {
		pc.cancel()

		var unrelayErr error
		pc.bindMu.Lock()
		if pc.relay != nil {
			unrelayErr = pc.relay.Unrelay(pc, pc.remoteID)
		}
		pc.bindMu.Unlock()

		err = errors.Join(unrelayErr, pc.channel.Close(), pc.engine.Close())
		pc.entry().Debug("Peer connection closed")
	})
	return err
}

func (pc *PeerConnection) Connection() *Connection {
	return pc.conn
}

func (pc *PeerConnection) RemoteID() string {
	pc.bindMu.Lock()
	defer pc.bindMu.Unlock()
	return pc.remoteID
}

func (pc *PeerConnection) Relay() relay.Relay {
	pc.bindMu.Lock()
	defer pc.bindMu.Unlock()
	return pc.relay
}

// State reports the data channel's ready state.
func (pc *PeerConnection) State() ChannelState {
	return pc.channel.ReadyState()
}

func (pc *PeerConnection) binding() (relay.Relay, string) {
	pc.bindMu.Lock()
	defer pc.bindMu.Unlock()
	return pc.relay, pc.remoteID
}

func (pc *PeerConnection) entry() *logrus.Entry {
	return pc.log.WithField("peer", pc.RemoteID())
}
