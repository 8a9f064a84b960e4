package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/peerlink/internal/relay"
	"github.com/rudransh-shrivastava/peerlink/internal/rtc"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	chunkSize   = 16 * 1024
	openTimeout = 30 * time.Second
)

var (
	dialRelayURL string
	dialID       string
	dialFile     string
)

var dialCmd = &cobra.Command{
	Use:   "dial peer-id",
	Short: "connect to a listening peer",
	Long:  `offers a data channel to peer-id through the relay, then sends stdin line by line or the file given with --file`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remoteID := args[0]
		log, err := newLogger()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		client, err := relay.Dial(ctx, relay.ClientConfig{URL: dialRelayURL, ID: dialID, Logger: log})
		if err != nil {
			return err
		}
		defer client.Close()

		pc, err := rtc.Create(client, remoteID, peerOptions(log))
		if err != nil {
			return err
		}
		defer pc.Close()

		conn := pc.Connection()
		opened := make(chan struct{})
		closed := make(chan struct{})
		conn.OnOpen(sync.OnceFunc(func() { close(opened) }))
		conn.OnClose(sync.OnceFunc(func() { close(closed) }))
		conn.OnError(func(err error) { log.WithError(err).Warn("Peer error") })
		conn.OnMessage(func(data []byte) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", remoteID, data)
		})

		pc.CreateOffer()
		if err := waitOpen(ctx, opened, remoteID); err != nil {
			return err
		}
		log.WithField("peer", remoteID).Info("Peer connected")

		if dialFile != "" {
			if err := sendFile(conn, dialFile); err != nil {
				return err
			}
			log.WithField("file", dialFile).Info("File sent, press Ctrl-C to exit")
			select {
			case <-ctx.Done():
			case <-closed:
			}
			return nil
		}
		return sendLines(ctx, conn, cmd.InOrStdin(), log)
	},
}

// waitOpen shows a spinner until the data channel opens.
func waitOpen(ctx context.Context, opened <-chan struct{}, remoteID string) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("connecting to "+remoteID),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Finish() }()

	timeout := time.NewTimer(openTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-opened:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return fmt.Errorf("%w: %s did not connect within %s", rtc.ErrNotReady, remoteID, openTimeout)
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

func sendFile(conn *rtc.Connection, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	bar := progressbar.DefaultBytes(info.Size(), "sending "+info.Name())
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := conn.Send(chunk); sendErr != nil {
				return sendErr
			}
			_ = bar.Add(n)
		}
		if errors.Is(err, io.EOF) {
			return bar.Finish()
		}
		if err != nil {
			return err
		}
	}
}

func sendLines(ctx context.Context, conn *rtc.Connection, in io.Reader, log *logrus.Logger) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := conn.Send([]byte(scanner.Text())); err != nil {
			if errors.Is(err, rtc.ErrClosed) {
				log.Info("Peer closed the connection")
				return nil
			}
			return err
		}
	}
	return scanner.Err()
}

func init() {
	dialCmd.Flags().StringVar(&dialRelayURL, "relay", defaultRelayURL, "relay server URL")
	dialCmd.Flags().StringVar(&dialID, "id", "", "id to register with the relay (default assigned by the relay)")
	dialCmd.Flags().StringVar(&dialFile, "file", "", "send this file instead of stdin")
}
