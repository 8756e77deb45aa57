// Command gateway is the OpenAI-compatible LLM gateway server.
//
// It reads configuration from environment variables (or a .env file) and
// starts the gateway's HTTP surface, usage worker, and stats calculator on
// the configured port.
//
// Quick-start:
//
//	DATABASE_URL=postgres://... OPENAI_API_KEY=sk-... ./gateway
//
// See internal/config for all available configuration variables.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vectorplane/llmgateway/internal/app"
	"github.com/vectorplane/llmgateway/internal/config"
	"github.com/vectorplane/llmgateway/internal/logger"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration — exits with a descriptive error if required vars are missing.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Build the structured logger. All subsystems share this instance.
	slogger := logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Initialise and run the application.
	a, err := app.New(ctx, cfg, slogger, version)
	if err != nil {
		slogger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		slogger.Error("gateway stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
