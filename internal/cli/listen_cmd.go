package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/rudransh-shrivastava/peerlink/internal/protocol"
	"github.com/rudransh-shrivastava/peerlink/internal/relay"
	"github.com/rudransh-shrivastava/peerlink/internal/rtc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	listenRelayURL string
	listenID       string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "accept connections from peers",
	Long:  `connects to the relay, answers every incoming offer and prints what peers send`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		client, err := relay.Dial(ctx, relay.ClientConfig{URL: listenRelayURL, ID: listenID, Logger: log})
		if err != nil {
			return err
		}
		defer client.Close()

		l := &listener{
			relay: client,
			log:   log,
			peers: make(map[string]*rtc.PeerConnection),
			out:   cmd.OutOrStdout(),
		}
		client.OnUnrouted(l.accept)

		log.WithField("id", client.ID()).Info("Listening for peers")

		select {
		case <-ctx.Done():
		case <-client.Done():
			log.Warn("Relay connection closed")
		}
		l.closeAll()
		return nil
	},
}

type listener struct {
	relay *relay.Client
	log   *logrus.Logger
	out   io.Writer

	mu    sync.Mutex
	peers map[string]*rtc.PeerConnection
}

// accept starts a session for a peer whose first message is an offer.
func (l *listener) accept(from string, msg protocol.Message) {
	log := l.log.WithField("peer", from)
	if msg.Type != protocol.MsgOffer {
		log.WithField("type", msg.Type).Warn("Ignoring message from unknown peer")
		return
	}

	pc, err := rtc.Create(l.relay, from, peerOptions(l.log))
	if err != nil {
		log.WithError(err).Error("Failed to create peer connection")
		return
	}

	conn := pc.Connection()
	conn.OnOpen(func() { log.Info("Peer connected") })
	conn.OnMessage(func(data []byte) {
		fmt.Fprintf(l.out, "%s: %s\n", from, data)
	})
	conn.OnError(func(err error) { log.WithError(err).Warn("Peer error") })
	conn.OnClose(func() {
		l.mu.Lock()
		if l.peers[from] == pc {
			delete(l.peers, from)
		}
		l.mu.Unlock()
		go pc.Close()
	})

	l.mu.Lock()
	l.peers[from] = pc
	l.mu.Unlock()

	pc.HandleMessage(msg)
}

func (l *listener) closeAll() {
	l.mu.Lock()
	peers := l.peers
	l.peers = make(map[string]*rtc.PeerConnection)
	l.mu.Unlock()

	for id, pc := range peers {
		if err := pc.Close(); err != nil {
			l.log.WithError(err).WithField("peer", id).Debug("Failed to close peer connection")
		}
	}
}

func init() {
	listenCmd.Flags().StringVar(&listenRelayURL, "relay", defaultRelayURL, "relay server URL")
	listenCmd.Flags().StringVar(&listenID, "id", "", "id to register with the relay (default assigned by the relay)")
}
