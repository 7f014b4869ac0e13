package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cryptobot/internal/api"
	"cryptobot/internal/backtest"
	"cryptobot/internal/config"
	"cryptobot/internal/feed"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy/builtins"
	"cryptobot/internal/util"
)

func main() {
	cfgPath := "config/cryptobot.yaml"
	if p := os.Getenv("CRYPTOBOT_CONFIG"); p != "" {
		cfgPath = p
	} else if _, err := os.Stat(cfgPath); err != nil {
		cfgPath = ""
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	f, err := feed.Open(cfg, logger)
	if err != nil {
		log.Fatalf("opening feed: %v", err)
	}
	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening result store: %v", err)
	}
	defer results.Close()

	engineCfg, err := cfg.EngineConfig(logger)
	if err != nil {
		log.Fatalf("engine config: %v", err)
	}
	svc, err := backtest.NewService(backtest.Options{
		Registry:  builtins.Registry(),
		Feed:      f,
		Store:     results,
		Engine:    engineCfg,
		Timeframe: cfg.Timeframe(),
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("creating backtest service: %v", err)
	}

	srv := api.NewServer(svc, api.Options{
		HTTPAddr: cfg.Server.HTTPAddr(),
		GRPCAddr: cfg.Server.GRPCAddr(),
		Logger:   logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("cryptobot-server starting",
		"http", cfg.Server.HTTPAddr(),
		"grpc", cfg.Server.GRPCAddr(),
		"source", svc.DataSource(),
		"strategies", len(svc.Strategies()),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("cryptobot-server stopped")
}
