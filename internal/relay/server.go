package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peerlink/internal/logger"
	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
	"github.com/rudransh-shrivastava/peerlink/internal/store"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Addr   string
	Logger *logrus.Logger
	// Store records connected peers. Optional; without it the server
	// answers peer listings from memory.
	Store *store.PeerStore
}

// Server forwards relay frames between the peers connected to it over
// websockets. Each peer is known by the id it announced in its hello frame
// or, failing that, by an id the server assigns.
type Server struct {
	config   Config
	logger   *logrus.Logger
	store    *store.PeerStore
	listener net.Listener
	http     *http.Server

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	mu         sync.Mutex
}

func (s *session) write(f protocol.Frame) error {
	data, err := protocol.EncodeFrame(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewServer(cfg Config) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	s := &Server{
		config:   cfg,
		logger:   log,
		store:    cfg.Store,
		listener: listener,
		sessions: make(map[string]*session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL is the websocket address clients dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + "/"
}

func (s *Server) Start(ctx context.Context) error {
	if s.store != nil {
		if err := s.store.DropAllPeers(ctx); err != nil {
			return fmt.Errorf("clearing stale peers: %w", err)
		}
	}

	s.logger.WithField("addr", s.Addr()).Info("Relay server started")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		_ = s.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down relay server")

	// hijacked websocket connections outlive http.Server.Close
	s.mu.Lock()
	for _, sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mu.Unlock()

	return s.http.Close()
}

// Peers returns the ids of the connected peers.
func (s *Server) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}
	defer func() { _ = conn.Close() }()

	ctx := r.Context()
	sess, err := s.register(ctx, conn, r.RemoteAddr)
	if err != nil {
		s.logger.WithError(err).WithField("addr", r.RemoteAddr).Warn("Rejected peer")
		return
	}

	log := s.logger.WithField("peer", sess.id)
	log.Info("Peer connected")
	defer func() {
		s.unregister(ctx, sess)
		log.Info("Peer disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("Failed to read frame")
			return
		}

		f, err := protocol.DecodeFrame(data)
		if err != nil {
			log.WithError(err).Warn("Dropping malformed frame")
			continue
		}

		s.handleFrame(ctx, sess, f)
	}
}

func (s *Server) register(ctx context.Context, conn *websocket.Conn, remoteAddr string) (*session, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}

	hello, err := protocol.DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	if hello.Kind != protocol.FrameHello {
		return nil, fmt.Errorf("%w: expected hello, got %s", protocol.ErrMalformed, hello.Kind)
	}

	id := hello.From
	if id == "" {
		id = uuid.NewString()
	}
	sess := &session{id: id, remoteAddr: remoteAddr, conn: conn}

	s.mu.Lock()
	if _, taken := s.sessions[id]; taken {
		s.mu.Unlock()
		_ = sess.write(protocol.Frame{Kind: protocol.FrameError, To: id, Error: ErrIDTaken.Error()})
		return nil, fmt.Errorf("%w: %s", ErrIDTaken, id)
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.CreatePeer(ctx, id, remoteAddr); err != nil {
			s.logger.WithError(err).WithField("peer", id).Warn("Failed to record peer")
		}
	}

	if err := sess.write(protocol.Frame{Kind: protocol.FrameWelcome, To: id}); err != nil {
		s.unregister(ctx, sess)
		return nil, fmt.Errorf("sending welcome: %w", err)
	}
	return sess, nil
}

func (s *Server) unregister(ctx context.Context, sess *session) {
	s.mu.Lock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeletePeer(context.WithoutCancel(ctx), sess.id); err != nil {
			s.logger.WithError(err).WithField("peer", sess.id).Warn("Failed to remove peer")
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, sess *session, f protocol.Frame) {
	log := s.logger.WithField("peer", sess.id)

	switch f.Kind {
	case protocol.FramePing:
		log.Debug("Received ping, sending pong")
		if err := sess.write(protocol.Frame{Kind: protocol.FramePong}); err != nil {
			log.WithError(err).Error("Failed to send pong")
		}

	case protocol.FrameRelay:
		s.mu.Lock()
		target, ok := s.sessions[f.To]
		s.mu.Unlock()

		if !ok {
			log.WithField("target", f.To).Warn("Relay target not connected")
			if err := sess.write(protocol.Frame{Kind: protocol.FrameError, To: f.To, Error: ErrUnknownPeer.Error()}); err != nil {
				log.WithError(err).Error("Failed to send error")
			}
			return
		}

		err := target.write(protocol.Frame{Kind: protocol.FrameRelay, From: sess.id, To: target.id, Body: f.Body})
		if err != nil {
			log.WithError(err).WithField("target", f.To).Warn("Failed to relay frame")
			return
		}
		if s.store != nil {
			if err := s.store.TouchPeer(ctx, sess.id); err != nil {
				log.WithError(err).Debug("Failed to touch peer")
			}
		}

	case protocol.FramePeers:
		peers, err := s.listPeers(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to list peers")
			return
		}
		if err := sess.write(protocol.Frame{Kind: protocol.FramePeers, Peers: peers}); err != nil {
			log.WithError(err).Error("Failed to send peer list")
		}

	default:
		log.WithField("kind", f.Kind).Warn("Unhandled frame kind")
	}
}

func (s *Server) listPeers(ctx context.Context) ([]string, error) {
	if s.store == nil {
		return s.Peers(), nil
	}

	rows, err := s.store.GetPeers(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
