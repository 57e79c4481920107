package wiring

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/octopresence/internal/config"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(backend string, hosts ...string) *config.Config {
	return &config.Config{
		Layer: config.LayerConfig{
			Backend:         backend,
			Hosts:           hosts,
			Prefix:          "asgi",
			GroupExpiry:     time.Hour,
			ChannelCapacity: 10,
			ChannelExpiry:   time.Minute,
		},
		Presence: config.PresenceConfig{LivenessWindow: 20 * time.Minute},
	}
}

func TestBuildMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Build(ctx, baseConfig("memory"))
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Printers)
	assert.Contains(t, s.Health, "layer")
	require.NoError(t, s.Router.Touch(ctx, "p_web.1", "specific.a"))
	n, err := s.Router.CountConnections(ctx, "p_web.1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, s.Router.OnConnectionChange(ctx, "p_octo.1"))
}

func TestBuildRedis(t *testing.T) {
	ctx := context.Background()
	layerRedis := miniredis.RunT(t)
	statusRedis := miniredis.RunT(t)
	require.NoError(t, statusRedis.Set("printer_status:9", "{}"))

	cfg := baseConfig("redis", layerRedis.Addr())
	cfg.StatusCache = config.StatusCacheConfig{URL: "redis://" + statusRedis.Addr(), Prefix: "printer_status:"}
	s, err := Build(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	for name, p := range s.Health {
		assert.NoError(t, p.Ping(ctx), name)
	}
	require.NoError(t, s.Router.Touch(ctx, "p_octo.9", "specific.a"))
	assert.True(t, layerRedis.Exists("asgi:group:p_octo.9"))

	require.NoError(t, s.Layer.Discard(ctx, "p_octo.9", domain.ChannelName("specific.a")))
	require.NoError(t, s.Router.OnConnectionChange(ctx, "p_octo.9"))
	assert.False(t, statusRedis.Exists("printer_status:9"))
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	_, err := Build(context.Background(), baseConfig("etcd"))
	assert.Error(t, err)
}
