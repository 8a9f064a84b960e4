package cli

import (
	"context"
	"errors"

	"github.com/rudransh-shrivastava/peerlink/internal/db"
	"github.com/rudransh-shrivastava/peerlink/internal/relay"
	"github.com/rudransh-shrivastava/peerlink/internal/store"
	"github.com/spf13/cobra"
)

var (
	relayAddr string
	relayDB   string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "run a relay server",
	Long:  `runs the relay server peers exchange negotiation messages through, connected peers are recorded in a sqlite database`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}

		gormDB, err := db.Open(relayDB)
		if err != nil {
			return err
		}

		srv, err := relay.NewServer(relay.Config{
			Addr:   relayAddr,
			Logger: log,
			Store:  store.NewPeerStore(gormDB),
		})
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("Relay server stopped")
		return nil
	},
}

func init() {
	relayCmd.Flags().StringVar(&relayAddr, "addr", ":8080", "address to listen on")
	relayCmd.Flags().StringVar(&relayDB, "db", "peerlink.db", "sqlite database path")
}
