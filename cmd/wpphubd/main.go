package main

import (
	"flag"
	"strings"

	"github.com/matheus3301/wpphub/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file (default <data-dir>/config.toml)")
	dataDirFlag := flag.String("data-dir", "", "data directory (overrides config)")
	envFlag := flag.String("env", ".env", "comma-separated dotenv files applied over the config")
	flag.Parse()

	var envFiles []string
	for _, f := range strings.Split(*envFlag, ",") {
		if f = strings.TrimSpace(f); f != "" {
			envFiles = append(envFiles, f)
		}
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ConfigPath: *configFlag,
			DataDir:    *dataDirFlag,
			EnvFiles:   envFiles,
		}),
	)

	app.Run()
}
