package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"physics-tutor/api/internal/app"
	"physics-tutor/api/internal/config"
	"physics-tutor/api/internal/logger"
	"physics-tutor/api/internal/webapp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("wiring failed", "error", err)
	}
	defer deps.Close()

	web := webapp.NewWebApp(deps.NewTutor(nil), log, webapp.WithCORS(cfg.CORSOrigins))
	web.SetHealthCheck(deps.Health)
	errc := web.Run(":" + cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			log.Error("web server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := web.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	log.Info("bye")
}
