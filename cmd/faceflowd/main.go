package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/faceflow-labs/faceflow-core/internal/config"
	"github.com/faceflow-labs/faceflow-core/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		text        string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "faceflow.yaml", "Path to configuration file")
	flag.StringVar(&text, "text", "", "Text to synthesize and stream to the animation service")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if text == "" {
		logger.Error("no text given, use -text")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	record, err := rt.RunSession(ctx, text)
	if err != nil {
		logger.Error("session failed", slog.String("error", err.Error()))
	} else {
		logger.Info("session complete",
			slog.String("session_id", record.SessionID),
			slog.Int("keyframes", record.Keyframes),
			slog.String("artifacts", record.ArtifactDir))
	}

	if shutdownErr := rt.Shutdown(context.Background()); shutdownErr != nil {
		logger.Error("shutdown error", slog.String("error", shutdownErr.Error()))
	}
	if err != nil {
		os.Exit(1)
	}
}
