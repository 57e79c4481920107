package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "PRESENCE"

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	TouchInterval time.Duration `mapstructure:"touch_interval"`
	Secret        string        `mapstructure:"secret"`

	Layer       LayerConfig       `mapstructure:"layer"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	StatusCache StatusCacheConfig `mapstructure:"status_cache"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

type LayerConfig struct {
	// Backend is "redis" or "memory".
	Backend         string        `mapstructure:"backend"`
	Hosts           []string      `mapstructure:"hosts"`
	Prefix          string        `mapstructure:"prefix"`
	GroupExpiry     time.Duration `mapstructure:"group_expiry"`
	ChannelCapacity int           `mapstructure:"channel_capacity"`
	ChannelExpiry   time.Duration `mapstructure:"channel_expiry"`
	FanoutWorkers   int           `mapstructure:"fanout_workers"`
	PoolSize        int           `mapstructure:"pool_size"`
	PruneMissing    bool          `mapstructure:"prune_missing"`
}

type PresenceConfig struct {
	LivenessWindow  time.Duration `mapstructure:"liveness_window"`
	BlockingTimeout time.Duration `mapstructure:"blocking_timeout"`
	DispatchWorkers int           `mapstructure:"dispatch_workers"`
	DispatchQueue   int           `mapstructure:"dispatch_queue"`
}

type StatusCacheConfig struct {
	// URL of the Redis holding printer status; empty means the first layer host.
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresConfig points at the printer database. DSN wins over the
// discrete fields. Leaving both empty disables the should-watch relay.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MinConns int    `mapstructure:"min_conns"`
	MaxConns int    `mapstructure:"max_conns"`
}

func (p PostgresConfig) Enabled() bool { return p.DSN != "" || p.Host != "" }

type RateLimitConfig struct {
	Frames   int           `mapstructure:"frames"`
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("touch_interval", "5m")
	v.SetDefault("secret", "")

	v.SetDefault("layer.backend", "redis")
	v.SetDefault("layer.hosts", []string{"localhost:6379"})
	v.SetDefault("layer.prefix", "asgi")
	v.SetDefault("layer.group_expiry", "24h")
	v.SetDefault("layer.channel_capacity", 100)
	v.SetDefault("layer.channel_expiry", "60s")
	v.SetDefault("layer.fanout_workers", 16)
	v.SetDefault("layer.pool_size", 0)
	v.SetDefault("layer.prune_missing", false)

	v.SetDefault("presence.liveness_window", "1200s")
	v.SetDefault("presence.blocking_timeout", "10s")
	v.SetDefault("presence.dispatch_workers", 8)
	v.SetDefault("presence.dispatch_queue", 1024)

	v.SetDefault("status_cache.url", "")
	v.SetDefault("status_cache.prefix", "printer_status:")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.name", "")
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.ssl_mode", "prefer")
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conns", 4)

	v.SetDefault("rate_limit.frames", 20)
	v.SetDefault("rate_limit.interval", "1s")
}

// Load reads config/config.{CONFIG_ENV}.yaml, dev by default.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists, then applies PRESENCE_* environment
// overrides (PRESENCE_LAYER_BACKEND for layer.backend) on top of defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("backend", cfg.Layer.Backend).
		Strs("hosts", cfg.Layer.Hosts).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Layer.Backend {
	case "memory":
	case "redis":
		if len(c.Layer.Hosts) == 0 {
			errs = append(errs, errors.New("layer.hosts is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown layer.backend %q", c.Layer.Backend))
	}
	if c.Layer.ChannelCapacity < 1 {
		errs = append(errs, errors.New("layer.channel_capacity must be positive"))
	}
	if c.Presence.LivenessWindow <= 0 {
		errs = append(errs, errors.New("presence.liveness_window must be positive"))
	}
	if c.TouchInterval <= 0 || c.TouchInterval >= c.Presence.LivenessWindow {
		errs = append(errs, fmt.Errorf("touch_interval %s must be positive and shorter than presence.liveness_window %s",
			c.TouchInterval, c.Presence.LivenessWindow))
	}
	if c.RateLimit.Frames < 1 || c.RateLimit.Interval <= 0 {
		errs = append(errs, errors.New("rate_limit.frames and rate_limit.interval must be positive"))
	}
	if c.Postgres.Enabled() && c.Postgres.MaxConns < c.Postgres.MinConns {
		errs = append(errs, fmt.Errorf("postgres.max_conns %d below min_conns %d", c.Postgres.MaxConns, c.Postgres.MinConns))
	}
	return errors.Join(errs...)
}
