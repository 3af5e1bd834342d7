package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenMachineSensors/internal/config"
	"github.com/KevinKickass/OpenMachineSensors/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	envPath := flag.String("env", ".env", "optional env file loaded before the config")
	tokenRole := flag.String("token", "", "print an access token for the given role and exit")
	tokenSubject := flag.String("subject", "cli", "subject of the token printed with -token")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := config.LoadEnv(*envPath); err != nil {
		logger.Fatal("Failed to load env file", zap.Error(err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Config loaded successfully", zap.String("path", *configPath))

	lifecycle, err := system.NewLifecycleManager(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create lifecycle manager", zap.Error(err))
	}

	if *tokenRole != "" {
		token, err := lifecycle.JWTHandler().GenerateAccessToken(*tokenSubject, *tokenRole)
		if err != nil {
			logger.Fatal("Failed to generate token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	if err := lifecycle.Start(context.Background()); err != nil {
		logger.Error("Failed to start system", zap.Error(err))
		_ = lifecycle.Shutdown(context.Background())
		os.Exit(1)
	}

	logger.Info("OpenMachineSensors started successfully")

	// Graceful shutdown on signal or API request
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case <-lifecycle.Done():
		logger.Info("OpenMachineSensors stopped by API request")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("OpenMachineSensors stopped successfully")
}
