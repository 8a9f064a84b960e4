package relay

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/peerlink/internal/db"
	"github.com/rudransh-shrivastava/peerlink/internal/logger"
	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
	"github.com/rudransh-shrivastava/peerlink/internal/store"
)

func TestNewServer(t *testing.T) {
	srv, err := NewServer(Config{
		Addr:   "127.0.0.1:0",
		Logger: logger.Discard(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer func() { _ = srv.Shutdown() }()

	if srv.Addr() == "" {
		t.Error("Expected non-empty address")
	}
	if want := "ws://" + srv.Addr() + "/"; srv.URL() != want {
		t.Errorf("Expected URL %q, got %q", want, srv.URL())
	}
}

func TestServerHandlePing(t *testing.T) {
	srv, _ := setupServer(t)
	client := dialClient(t, srv, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestServerAssignsID(t *testing.T) {
	srv, _ := setupServer(t)
	client := dialClient(t, srv, "")

	if client.ID() == "" {
		t.Fatal("Expected server-assigned id")
	}
}

func TestServerRejectsTakenID(t *testing.T) {
	srv, _ := setupServer(t)
	dialClient(t, srv, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, ClientConfig{URL: srv.URL(), ID: "alice", Logger: logger.Discard()})
	if !errors.Is(err, ErrIDTaken) {
		t.Fatalf("Expected ErrIDTaken, got %v", err)
	}
}

func TestServerRelaysBetweenClients(t *testing.T) {
	srv, _ := setupServer(t)
	alice := dialClient(t, srv, "alice")
	bob := dialClient(t, srv, "bob")

	received := make(chan protocol.Message, 1)
	if err := bob.RelayFor(handlerFunc(func(msg protocol.Message) { received <- msg }), "alice"); err != nil {
		t.Fatalf("RelayFor failed: %v", err)
	}

	if err := alice.Relay("bob", candidateMessage(t)); err != nil {
		t.Fatalf("Relay failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Type != protocol.MsgICECandidate {
			t.Errorf("Expected ICE_CANDIDATE, got %s", msg.Type)
		}
		if _, err := msg.Candidate(); err != nil {
			t.Errorf("Candidate failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Message was not relayed")
	}
}

func TestServerHandsUnroutedToHook(t *testing.T) {
	srv, _ := setupServer(t)
	alice := dialClient(t, srv, "alice")
	bob := dialClient(t, srv, "bob")

	from := make(chan string, 1)
	bob.OnUnrouted(func(sender string, msg protocol.Message) { from <- sender })

	if err := alice.Relay("bob", candidateMessage(t)); err != nil {
		t.Fatalf("Relay failed: %v", err)
	}

	select {
	case sender := <-from:
		if sender != "alice" {
			t.Errorf("Expected sender alice, got %s", sender)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Unrouted hook was not called")
	}
}

func TestServerUnknownTargetKeepsSession(t *testing.T) {
	srv, _ := setupServer(t)
	alice := dialClient(t, srv, "alice")

	if err := alice.Relay("nobody", candidateMessage(t)); err != nil {
		t.Fatalf("Relay failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := alice.Ping(ctx); err != nil {
		t.Fatalf("Ping after unknown target failed: %v", err)
	}
}

func TestServerListsPeersFromStore(t *testing.T) {
	srv, ps := setupServer(t)
	alice := dialClient(t, srv, "alice")
	dialClient(t, srv, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peers, err := alice.Peers(ctx)
	if err != nil {
		t.Fatalf("Peers failed: %v", err)
	}
	if !slices.Equal(peers, []string{"alice", "bob"}) {
		t.Errorf("Expected [alice bob], got %v", peers)
	}

	peer, err := ps.GetPeer(ctx, "bob")
	if err != nil {
		t.Fatalf("GetPeer failed: %v", err)
	}
	if peer.RemoteAddr == "" {
		t.Error("Expected remote address to be recorded")
	}
}

func TestServerForgetsDisconnectedPeer(t *testing.T) {
	srv, ps := setupServer(t)
	alice := dialClient(t, srv, "alice")
	if err := alice.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		peers, err := ps.GetPeers(ctx)
		if err != nil {
			t.Fatalf("GetPeers failed: %v", err)
		}
		if len(peers) == 0 && len(srv.Peers()) == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Peer was not removed after disconnect")
}

func TestClientClosedIsNotConnected(t *testing.T) {
	srv, _ := setupServer(t)
	alice := dialClient(t, srv, "alice")
	_ = alice.Close()

	if err := alice.Relay("bob", candidateMessage(t)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestClientIgnoresStalePeerList(t *testing.T) {
	srv, _ := setupServer(t)
	alice := dialClient(t, srv, "alice")

	// a reply that arrived after its caller gave up
	alice.peersCh <- []string{"stale"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peers, err := alice.Peers(ctx)
	if err != nil {
		t.Fatalf("Peers failed: %v", err)
	}
	if !slices.Equal(peers, []string{"alice"}) {
		t.Errorf("Expected [alice], got %v", peers)
	}
}

func TestClientReportsUndecodableMessageToHandler(t *testing.T) {
	srv, _ := setupServer(t)
	alice := dialClient(t, srv, "alice")

	h := &malformedRecorder{errs: make(chan error, 1)}
	if err := alice.RelayFor(h, "mallory"); err != nil {
		t.Fatalf("RelayFor failed: %v", err)
	}

	mallory := dialRaw(t, srv, "mallory")
	frame, err := protocol.EncodeFrame(protocol.Frame{Kind: protocol.FrameRelay, To: "alice", Body: []byte(`["OFFER"]`)})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if err := mallory.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	select {
	case err := <-h.errs:
		if !errors.Is(err, protocol.ErrMalformed) {
			t.Errorf("Expected ErrMalformed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Handler was not told about the malformed message")
	}
}

type malformedRecorder struct {
	errs chan error
}

func (r *malformedRecorder) HandleMessage(protocol.Message) {}

func (r *malformedRecorder) HandleMalformed(err error) { r.errs <- err }

type handlerFunc func(msg protocol.Message)

func (f handlerFunc) HandleMessage(msg protocol.Message) { f(msg) }

func setupServer(t *testing.T) (*Server, *store.PeerStore) {
	t.Helper()

	gormDB, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	ps := store.NewPeerStore(gormDB)

	srv, err := NewServer(Config{
		Addr:   "127.0.0.1:0",
		Logger: logger.Discard(),
		Store:  ps,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-serverErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Server error: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("Server did not shutdown in time")
		}
	})
	return srv, ps
}

// dialRaw registers id over a bare websocket so that tests can send
// bodies the Client would refuse to encode.
func dialRaw(t *testing.T, srv *Server, id string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	hello, err := protocol.EncodeFrame(protocol.Frame{Kind: protocol.FrameHello, From: id})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, hello); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("Reading welcome failed: %v", err)
	}
	return conn
}

func dialClient(t *testing.T, srv *Server, id string) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, ClientConfig{URL: srv.URL(), ID: id, Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
