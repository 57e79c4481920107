// Package wiring builds the presence stack from configuration. Both the
// server and the admin CLI go through Build so they address the same stores
// the same way.
package wiring

import (
	"context"
	"errors"
	"fmt"

	httpapi "github.com/dkeye/octopresence/internal/adapters/http"
	"github.com/dkeye/octopresence/internal/adapters/memory"
	"github.com/dkeye/octopresence/internal/adapters/postgres"
	"github.com/dkeye/octopresence/internal/adapters/redis"
	"github.com/dkeye/octopresence/internal/app/layer"
	"github.com/dkeye/octopresence/internal/app/presence"
	"github.com/dkeye/octopresence/internal/config"
	"github.com/dkeye/octopresence/internal/core"
	"github.com/rs/zerolog/log"
)

type Stack struct {
	Layer  *layer.Layer
	Router *presence.Router
	// Printers is nil when no database is configured.
	Printers core.PrinterRepository
	Health   map[string]httpapi.Pinger

	closers []func() error
}

func Build(ctx context.Context, cfg *config.Config) (*Stack, error) {
	s := &Stack{Health: make(map[string]httpapi.Pinger)}

	var (
		groups    core.GroupStore
		transport core.Transport
	)
	switch cfg.Layer.Backend {
	case "memory":
		groups = memory.NewGroupStore()
		transport = memory.NewTransport(cfg.Layer.ChannelCapacity)
	case "redis":
		shards, err := redis.NewShards(cfg.Layer.Hosts, cfg.Layer.PoolSize)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, shards.Close)
		groups = redis.NewGroupStore(shards, cfg.Layer.Prefix, cfg.Layer.GroupExpiry)
		transport = redis.NewTransport(shards, cfg.Layer.Prefix, cfg.Layer.ChannelCapacity, cfg.Layer.ChannelExpiry)
	default:
		return nil, fmt.Errorf("unknown layer backend %q", cfg.Layer.Backend)
	}
	s.Health["layer"] = groups

	cache, err := s.statusCache(cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	var policy layer.Policy = layer.ReportOnly{}
	if cfg.Layer.PruneMissing {
		policy = layer.PruneMissing{}
	}
	s.Layer = layer.New(groups, transport, layer.Options{
		LivenessWindow: cfg.Presence.LivenessWindow,
		GroupExpiry:    cfg.Layer.GroupExpiry,
		FanoutWorkers:  cfg.Layer.FanoutWorkers,
		Policy:         policy,
	})
	s.Router = presence.NewRouter(s.Layer, cache)

	if cfg.Postgres.Enabled() {
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		repo := postgres.NewPrinterRepository(pool)
		s.Printers = repo
		s.Health["postgres"] = repo
	}

	log.Info().
		Str("module", "wiring").
		Str("backend", cfg.Layer.Backend).
		Bool("printers", s.Printers != nil).
		Msg("presence stack ready")
	return s, nil
}

// statusCache uses status_cache.url when set, else the first layer host on
// the redis backend, else an in-process stand-in.
func (s *Stack) statusCache(cfg *config.Config) (core.StatusCache, error) {
	url := cfg.StatusCache.URL
	if url == "" && cfg.Layer.Backend == "redis" {
		url = cfg.Layer.Hosts[0]
	}
	if url == "" {
		return memory.StatusCache{}, nil
	}
	client, err := redis.NewClient(url)
	if err != nil {
		return nil, fmt.Errorf("status cache: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	cache := redis.NewStatusCache(client, cfg.StatusCache.Prefix)
	s.Health["status_cache"] = cache
	return cache, nil
}

func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
