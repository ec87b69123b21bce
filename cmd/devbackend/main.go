package main

import (
	"errors"
	"log"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/pscheid92/mathreel/internal/adapter/devbackend"
	"github.com/pscheid92/mathreel/internal/platform/logging"
)

type config struct {
	Port     string `env:"DEV_BACKEND_PORT" default:"5000"`
	LogLevel string `env:"LOG_LEVEL" default:"info"`
	Backend  devbackend.Config
}

func main() {
	_ = godotenv.Load()

	var cfg config
	if err := env.Load(&cfg, nil); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, "text")

	e := devbackend.New(cfg.Backend).Handler()
	slog.Info("Development backend listening", "port", cfg.Port, "video_url", cfg.Backend.VideoURL)
	if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Development backend stopped", "error", err)
	}
}
