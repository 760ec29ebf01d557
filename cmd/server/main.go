package main

import (
	"fmt"
	"log"

	"go.uber.org/zap"

	"gochainpay/config"
	"gochainpay/redis"
	"gochainpay/workers"
)

func main() {
	config.Init()

	logger, err := buildLogger(config.Config.Server.LogLevel)
	if err != nil {
		log.Fatalf("error building logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting cross-chain payment service")

	// connect to Redis, without persistence do not continue
	redis.Init()

	if err := workers.Init(logger); err != nil {
		logger.Fatal(fmt.Sprintf("error wiring workers: %v", err))
	}

	// there are 3 worker threads:
	// * execute pending payments through the transfer engines
	// * watch destination-chain confirmations for executing payments
	// * API serving HTTPS server (serves as main worker thread)
	go workers.Worker_processExecution()
	go workers.Worker_watchConfirmations()

	workers.Worker_HTTP()
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
