// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/bot"
	"github.com/PietroScorza/copytrade-bot/internal/config"
	"github.com/PietroScorza/copytrade-bot/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     50,
		MaxBackups:  5,
		MaxAge:      14,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	log.Info("starting copy-trading bot")

	runner, err := bot.NewRunner(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize bot", zap.Error(err))
	}

	if err := runner.Run(context.Background()); err != nil {
		log.Fatal("bot execution error", zap.Error(err))
	}
}
