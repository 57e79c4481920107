package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/octopresence/internal/adapters/http"
	wsedge "github.com/dkeye/octopresence/internal/adapters/signal"
	"github.com/dkeye/octopresence/internal/app"
	"github.com/dkeye/octopresence/internal/app/presence"
	"github.com/dkeye/octopresence/internal/config"
	"github.com/dkeye/octopresence/internal/wiring"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	stack, err := wiring.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build presence stack")
	}
	defer func() {
		if err := stack.Close(); err != nil {
			log.Error().Err(err).Msg("closing stores")
		}
	}()

	dispatcher := presence.NewDispatcher(context.Background(), stack.Router, cfg.Presence.DispatchWorkers, cfg.Presence.DispatchQueue)
	reg := app.NewRegistry()
	ws := wsedge.NewSignalWSController(
		stack.Layer,
		stack.Router,
		dispatcher,
		reg,
		wsedge.NewChannelRateLimiter(cfg.RateLimit.Frames, cfg.RateLimit.Interval),
		wsedge.Options{
			ReadLimit:     cfg.ReadLimit,
			PingPeriod:    cfg.PingPeriod,
			TouchInterval: cfg.TouchInterval,
		},
	)
	api := &router.API{Router: stack.Router, Printers: stack.Printers, Health: stack.Health, Sessions: reg}

	r := router.SetupRouter(ctx, cfg, api, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("presence server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	reg.CancelAll()
	// Sockets discard themselves asynchronously; give them a moment before the
	// dispatcher and stores go away.
	waitForSessions(shutdownCtx, reg)
	dispatcher.Close()
	log.Info().Msg("Server exited gracefully")
}

func waitForSessions(ctx context.Context, reg *app.Registry) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for reg.Len() > 0 {
		select {
		case <-ctx.Done():
			log.Warn().Int("sessions", reg.Len()).Msg("sessions still open at shutdown")
			return
		case <-t.C:
		}
	}
}
