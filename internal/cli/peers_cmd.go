package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/peerlink/internal/relay"
	"github.com/spf13/cobra"
)

var peersRelayURL string

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "list peers connected to the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := relay.Dial(ctx, relay.ClientConfig{URL: peersRelayURL, Logger: log})
		if err != nil {
			return err
		}
		defer client.Close()

		peers, err := client.Peers(ctx)
		if err != nil {
			return err
		}
		for _, id := range peers {
			if id == client.ID() {
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	peersCmd.Flags().StringVar(&peersRelayURL, "relay", defaultRelayURL, "relay server URL")
}
