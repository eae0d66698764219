package main

import (
	"os"

	"mcdry/internal/cli"
	"mcdry/internal/config"
	"mcdry/internal/ctl"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()

	if err := ctl.NewRootCommand(cfg.SQLiteDBPath, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
