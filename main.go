package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/busbell/busbell-go/cmd"
	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
