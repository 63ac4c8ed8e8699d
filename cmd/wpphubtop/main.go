package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/wpphub/internal/client"
	"github.com/matheus3301/wpphub/internal/lock"
	"github.com/matheus3301/wpphub/internal/paths"
	"github.com/matheus3301/wpphub/internal/tui"
)

func main() {
	addrFlag := flag.String("addr", os.Getenv("WPPHUB_ADDR"), "daemon HTTP address (default: the running daemon)")
	dataDirFlag := flag.String("data-dir", paths.DefaultRoot(), "daemon data directory")
	flag.Parse()

	addr := *addrFlag
	if addr == "" {
		owner, err := lock.ReadOwner(paths.Expand(*dataDirFlag))
		if err == nil && owner.HTTP != "" {
			addr = owner.HTTP
		}
	}
	switch {
	case addr == "":
		addr = client.DefaultBaseURL
	case !strings.Contains(addr, "://"):
		addr = client.BaseURLFor(addr)
	}

	app := tui.NewApp(client.New(addr), addr)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
