package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/wpphub/internal/client"
	"github.com/matheus3301/wpphub/internal/lock"
	"github.com/matheus3301/wpphub/internal/paths"
	"github.com/spf13/cobra"
)

var (
	addrFlag    string
	socketFlag  string
	dataDirFlag string
	jsonFlag    bool
	timeoutFlag time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "wpphubctl",
	Short:             "Control a running wpphub daemon",
	SilenceUsage:      true,
	PersistentPreRunE: resolveEndpoints,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "daemon HTTP address (default: $WPPHUB_ADDR, then the running daemon)")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "daemon control socket (default: the running daemon's)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", paths.DefaultRoot(), "daemon data directory")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "print JSON")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "request timeout")
}

// resolveEndpoints fills --addr and --socket from the environment or from the
// lock file of the daemon serving --data-dir.
func resolveEndpoints(cmd *cobra.Command, args []string) error {
	dataDir := paths.Expand(dataDirFlag)
	owner, _ := lock.ReadOwner(dataDir)
	if addrFlag == "" {
		addrFlag = os.Getenv("WPPHUB_ADDR")
	}
	if addrFlag == "" && owner.HTTP != "" {
		addrFlag = client.BaseURLFor(owner.HTTP)
	}
	if socketFlag == "" {
		socketFlag = owner.Control
	}
	if socketFlag == "" {
		socketFlag = paths.SocketPath(dataDir)
	}
	return nil
}

func newClient() *client.Client {
	addr := addrFlag
	if addr != "" && !strings.Contains(addr, "://") {
		addr = client.BaseURLFor(addr)
	}
	return client.New(addr)
}

// requestContext bounds a single request by --timeout and Ctrl-C.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, timeoutFlag)
	return ctx, func() {
		cancel()
		stop()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

// output prints v as JSON under --json, otherwise runs human.
func output(v any, human func()) error {
	if jsonFlag {
		return printJSON(v)
	}
	human()
	return nil
}

func formatMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
