package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"parity/internal/app"
	"parity/internal/config"
	"parity/internal/engine"
	"parity/internal/logger"
)

func main() {
	mode := flag.String("mode", "paper", "run mode: paper (validation only) or full (validate then trade)")
	cfgPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	if *mode != "paper" && *mode != "full" {
		log.Fatalf("invalid mode %q: must be paper or full", *mode)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("failed to initialize log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s symbol=%s account=%s)", cfg.App.Env, cfg.Deriv.Symbol, cfg.Deriv.AccountType)

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	hasEdge, validation := a.Validate()

	if *mode == "paper" {
		logger.Infof("paper mode: validation complete, not trading")
		if err := a.Close(); err != nil {
			log.Fatalf("shutdown failed: %v", err)
		}
		return
	}

	runMode := engine.ModePaper
	if hasEdge {
		runMode = engine.ModeLive
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.RunTrading(ctx, runMode, validation); err != nil {
		log.Fatalf("trading session failed: %v", err)
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
