package main

import (
	"context"
	"errors"
	"os"

	"github.com/drivehop/drivehop/internal/shared"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	godotenv.Load()

	logger := shared.NewLogger(nil)

	configPath := os.Getenv("DRIVEHOP_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loaded, err := shared.LoadConfig(configPath); err == nil {
			config = loaded
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "drivehop",
		Usage:    "Transfer shared content from Quark Drive to Baidu Netdisk",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrBridgeUnavailable) {
			logger.Fatal("background service is not running, start it with 'drivehop serve'")
		}
		logger.Fatalf("application error: %v", err)
	}
}
