package main

import (
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"conn"},
	Short:   "Manage WhatsApp connections",
}

var connectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connections and their status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		conns, err := newClient().Connections(ctx)
		if err != nil {
			return err
		}
		return output(conns, func() {
			w := newTable()
			fmt.Fprintln(w, "ID\tSTATUS\tPHONE\tQR\tRETRY IN\tLAST DISCONNECT")
			for _, c := range conns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
					c.ID, c.Status, orDash(c.Phone), c.HasQR, retryIn(c), orDash(c.LastDisconnectReason))
			}
			_ = w.Flush()
		})
	},
}

var connectionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a connection with its recent lifecycle events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		detail, err := newClient().Connection(ctx, args[0])
		if err != nil {
			return err
		}
		return output(detail, func() {
			c := detail.Connection
			fmt.Printf("ID:       %s\n", c.ID)
			fmt.Printf("Status:   %s\n", c.Status)
			fmt.Printf("Phone:    %s\n", orDash(c.Phone))
			fmt.Printf("Messages: %d in, %d out\n", detail.Messages[store.Incoming], detail.Messages[store.Outgoing])
			if len(detail.Events) == 0 {
				return
			}
			fmt.Println()
			w := newTable()
			fmt.Fprintln(w, "TIME\tEVENT\tDETAIL")
			for _, e := range detail.Events {
				fmt.Fprintf(w, "%s\t%s\t%s\n", formatMs(e.CreatedAt), e.Kind, orDash(e.Detail))
			}
			_ = w.Flush()
		})
	},
}

var connectionsStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start or resume a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		info, err := newClient().Start(ctx, args[0])
		if err != nil {
			return err
		}
		return output(info, func() {
			fmt.Printf("%s: %s\n", info.ID, info.Status)
			if info.HasQR {
				fmt.Printf("Pairing required: wpphubctl qr %s\n", info.ID)
			}
		})
	},
}

var connectionsDisconnectCmd = &cobra.Command{
	Use:   "disconnect <id> | --all",
	Short: "Log out, wipe credentials and forget a connection",
	Args: func(cmd *cobra.Command, args []string) error {
		if all, _ := cmd.Flags().GetBool("all"); all {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if all, _ := cmd.Flags().GetBool("all"); all {
			ids, err := newClient().DisconnectAll(ctx)
			if err != nil {
				return err
			}
			return output(map[string][]string{"disconnected": ids}, func() {
				if len(ids) == 0 {
					fmt.Println("no connections")
				}
				for _, id := range ids {
					fmt.Printf("%s disconnected\n", id)
				}
			})
		}
		if err := newClient().Disconnect(ctx, args[0]); err != nil {
			return err
		}
		return output(map[string]string{"connectionId": args[0], "status": "disconnected"}, func() {
			fmt.Printf("%s disconnected\n", args[0])
		})
	},
}

var connectionsReinitCmd = &cobra.Command{
	Use:   "reinit <id>",
	Short: "Wipe credentials and pair the connection again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		info, err := newClient().Reinit(ctx, args[0])
		if err != nil {
			return err
		}
		return output(info, func() {
			fmt.Printf("%s: %s\n", info.ID, info.Status)
		})
	},
}

var qrCmd = &cobra.Command{
	Use:   "qr <id>",
	Short: "Print the pairing QR code of a connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		q, err := newClient().QR(ctx, args[0])
		if err != nil {
			return err
		}
		return output(q, func() {
			switch {
			case q.Code == "":
				fmt.Printf("No QR code for %s (status: %s)\n", args[0], q.Status)
			case term.IsTerminal(int(os.Stdout.Fd())):
				qrterminal.GenerateHalfBlock(q.Code, qrterminal.L, os.Stdout)
				fmt.Println("Scan with WhatsApp > Linked devices. The code rotates; run again if it expired.")
			default:
				fmt.Println(q.Code)
			}
		})
	},
}

func retryIn(c session.Info) string {
	if c.ReconnectDelayMs <= 0 {
		return "-"
	}
	return (time.Duration(c.ReconnectDelayMs) * time.Millisecond).String()
}

func init() {
	connectionsCmd.AddCommand(connectionsListCmd)
	connectionsCmd.AddCommand(connectionsShowCmd)
	connectionsCmd.AddCommand(connectionsStartCmd)
	connectionsCmd.AddCommand(connectionsDisconnectCmd)
	connectionsCmd.AddCommand(connectionsReinitCmd)

	connectionsDisconnectCmd.Flags().Bool("all", false, "disconnect every connection")

	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(qrCmd)
}
