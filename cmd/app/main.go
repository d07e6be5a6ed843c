package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"StockPipe/internal/di"
	"StockPipe/pkg/config"
	"StockPipe/pkg/server"
	"StockPipe/pkg/util"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", server.ModeRun, "run, daemon, universe, acquire or features")
	date := flag.String("date", "", "run date YYYY-MM-DD (default: today in the scheduler timezone)")
	force := flag.Bool("force", false, "refetch full history and refresh the universe")
	dryRun := flag.Bool("dry-run", false, "fetch and compute without persisting")
	testMode := flag.Bool("test", false, "limit the run to the first few tickers")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *force {
		cfg.Acquisition.Force = true
	}
	if *dryRun {
		cfg.Acquisition.DryRun = true
	}
	if *testMode {
		cfg.Mode = "test"
	}

	var runDate time.Time
	if *date != "" {
		runDate, err = util.ParseDate(*date)
		if err != nil {
			log.Fatalf("invalid -date: %v", err)
		}
	}

	log.Printf("env=%s mode=%s storage=%s", cfg.Environment, cfg.Mode, cfg.Storage.Type)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(*mode, runDate); err != nil {
		log.Printf("app error: %v", err)
		if errors.Is(err, server.ErrRunFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
