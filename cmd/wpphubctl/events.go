package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail the daemon event stream",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connectionID, _ := cmd.Flags().GetString("connection")
		kinds, _ := cmd.Flags().GetStringSlice("kind")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		events, err := newClient().Events(ctx, connectionID, kinds...)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for ev := range events {
			if jsonFlag {
				if err := enc.Encode(ev); err != nil {
					return err
				}
				continue
			}
			conn := ev.ConnectionID
			if conn == "" {
				conn = "-"
			}
			fmt.Printf("%s  %-18s %-12s %s\n", ev.Timestamp.Local().Format("15:04:05"), ev.Kind, conn, ev.Data)
		}
		if ctx.Err() == nil {
			return fmt.Errorf("event stream closed by daemon")
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringP("connection", "c", "", "only events of this connection")
	eventsCmd.Flags().StringSlice("kind", nil, "event kind prefixes to keep (e.g. status,message)")

	rootCmd.AddCommand(eventsCmd)
}
