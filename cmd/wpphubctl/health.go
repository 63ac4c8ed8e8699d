package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/wpphub/internal/monitor"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

var healthCmd = &cobra.Command{
	Use:   "health [connection-id]",
	Short: "Probe the daemon over its control socket",
	Long: `Probe the daemon over its control socket with the gRPC health protocol.

Without an argument the daemon itself is checked. "all" checks whether any
connection is online, a connection id whether that connection is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service := ""
		if len(args) == 1 {
			service = args[0]
			if service == "all" {
				service = monitor.Service
			} else {
				service = monitor.ConnectionService(service)
			}
		}

		if _, err := os.Stat(socketFlag); err != nil {
			return fmt.Errorf("daemon not running (no socket at %s)", socketFlag)
		}
		conn, err := grpc.NewClient(
			"unix://"+socketFlag,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return fmt.Errorf("connect to daemon: %w", err)
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		if jsonFlag {
			out, err := protojson.Marshal(resp)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		} else {
			fmt.Println(resp.GetStatus())
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%s", resp.GetStatus())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
