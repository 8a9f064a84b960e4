package rtc

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/peerlink/internal/logger"
	"github.com/rudransh-shrivastava/peerlink/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type peerEvents struct {
	open    chan struct{}
	message chan []byte
	errs    chan error
}

func setupPionPeer(t *testing.T, r relay.Relay, remoteID string) (*PeerConnection, *peerEvents) {
	t.Helper()

	engine, err := NewPionEngine(webrtc.Configuration{}, DefaultConstraints())
	require.NoError(t, err)

	pc, err := Create(r, remoteID, &Options{
		Engine:   engine,
		Reliable: true,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	ev := &peerEvents{
		open:    make(chan struct{}, 1),
		message: make(chan []byte, 8),
		errs:    make(chan error, 8),
	}
	conn := pc.Connection()
	conn.OnOpen(func() { ev.open <- struct{}{} })
	conn.OnMessage(func(data []byte) { ev.message <- data })
	conn.OnError(func(err error) { ev.errs <- err })
	return pc, ev
}

func waitOpen(t *testing.T, name string, ev *peerEvents) {
	t.Helper()
	select {
	case <-ev.open:
	case err := <-ev.errs:
		t.Fatalf("%s: unexpected error before open: %v", name, err)
	case <-time.After(15 * time.Second):
		t.Fatalf("%s: data channel did not open", name)
	}
}

func TestPeersExchangeDataOverHub(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	hub := relay.NewHub()
	alice, aliceEvents := setupPionPeer(t, hub.Endpoint("alice"), "bob")
	bob, bobEvents := setupPionPeer(t, hub.Endpoint("bob"), "alice")

	assert.ErrorIs(t, alice.Connection().Send([]byte("too early")), ErrNotReady)

	alice.CreateOffer()

	waitOpen(t, "alice", aliceEvents)
	waitOpen(t, "bob", bobEvents)
	assert.Equal(t, ChannelStateOpen, alice.State())
	assert.Equal(t, ChannelStateOpen, bob.State())

	require.NoError(t, alice.Connection().Send([]byte("hello")))
	select {
	case data := <-bobEvents.message:
		assert.Equal(t, "hello", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("bob did not receive message")
	}

	require.NoError(t, bob.Connection().Send([]byte("hi alice")))
	select {
	case data := <-aliceEvents.message:
		assert.Equal(t, "hi alice", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("alice did not receive message")
	}

	require.NoError(t, alice.Close())
	assert.ErrorIs(t, alice.Connection().Send([]byte("gone")), ErrClosed)
}
