package redis

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const ringSlots = 4096

// Ring maps a key onto one of size partitions. The slot space is fixed so a
// name keeps its partition for as long as the host list is unchanged.
type Ring struct {
	size int
}

func NewRing(size int) Ring {
	if size < 1 {
		size = 1
	}
	return Ring{size: size}
}

func (r Ring) Size() int { return r.size }

func (r Ring) Index(key string) int {
	slot := crc32.ChecksumIEEE([]byte(key)) & (ringSlots - 1)
	return int(float64(slot) / (float64(ringSlots) / float64(r.size)))
}

// Shards is the pool of per-host clients shared by every group and channel.
// Each client pools its own connections and is safe for concurrent use.
type Shards struct {
	ring    Ring
	clients []*goredis.Client
}

// NewShards dials nothing; connections are opened lazily by go-redis.
// Hosts are redis:// URLs or bare host:port addresses.
func NewShards(hosts []string, poolSize int) (*Shards, error) {
	if len(hosts) == 0 {
		return nil, errors.New("redis: at least one host is required")
	}
	clients := make([]*goredis.Client, 0, len(hosts))
	for _, h := range hosts {
		opts, err := clientOptions(h)
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("redis host %q: %w", h, err)
		}
		if poolSize > 0 {
			opts.PoolSize = poolSize
		}
		clients = append(clients, goredis.NewClient(opts))
	}
	log.Info().Str("module", "adapters.redis").Int("shards", len(clients)).Msg("redis shards configured")
	return &Shards{ring: NewRing(len(clients)), clients: clients}, nil
}

// NewClient builds a single client, used for stores that are not sharded.
func NewClient(host string) (*goredis.Client, error) {
	opts, err := clientOptions(host)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func clientOptions(host string) (*goredis.Options, error) {
	if strings.Contains(host, "://") {
		return goredis.ParseURL(host)
	}
	return &goredis.Options{Addr: host}, nil
}

// For returns the client owning key.
func (s *Shards) For(key string) *goredis.Client {
	return s.clients[s.ring.Index(key)]
}

func (s *Shards) Ping(ctx context.Context) error {
	for i, c := range s.clients {
		if err := c.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping shard %d: %w", i, err)
		}
	}
	return nil
}

func (s *Shards) Close() error {
	var errs []error
	for _, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
