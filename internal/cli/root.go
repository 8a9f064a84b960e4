// Package cli wires the peerlink commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/peerlink/internal/logger"
	"github.com/rudransh-shrivastava/peerlink/internal/rtc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultRelayURL = "ws://localhost:8080/"

var (
	logLevel    string
	stunServers []string
)

var rootCmd = &cobra.Command{
	Use:   "peerlink",
	Short: "peer to peer data channels negotiated through a relay",
	Long: `peerlink opens a WebRTC data channel between two peers. Offers, answers
and ICE candidates travel through a relay server until the direct channel
is open.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&stunServers, "stun", nil, "STUN server URLs (default Google's public servers)")

	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(dialCmd)
	rootCmd.AddCommand(peersCmd)
}

// newLogger logs to stderr so that stdout carries only peer data.
func newLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return logger.New(os.Stderr, level), nil
}

func peerOptions(log *logrus.Logger) *rtc.Options {
	config := rtc.DefaultSTUNConfig(stunServers...)
	return &rtc.Options{
		Configuration: &config,
		Reliable:      true,
		Logger:        log,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
