package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/dkeye/octopresence/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultGroupExpiry bounds how long an untouched group key survives.
const DefaultGroupExpiry = 24 * time.Hour

// GroupStore keeps one sorted set per group on the shard owning the group
// name. Every mutation is a single-key command so Redis supplies the
// atomicity; there are no client-side locks.
type GroupStore struct {
	shards *Shards
	prefix string
	expiry time.Duration
}

func NewGroupStore(shards *Shards, prefix string, expiry time.Duration) *GroupStore {
	if expiry <= 0 {
		expiry = DefaultGroupExpiry
	}
	return &GroupStore{shards: shards, prefix: prefix, expiry: expiry}
}

func (s *GroupStore) key(group string) string {
	return s.prefix + ":group:" + group
}

// Add is ZADD with the touch time as score, so re-adding updates in place.
func (s *GroupStore) Add(ctx context.Context, group string, channel domain.ChannelName, at time.Time) error {
	key := s.key(group)
	_, err := s.shards.For(group).TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZAdd(ctx, key, goredis.Z{Score: score(at), Member: string(channel)})
		p.Expire(ctx, key, s.expiry)
		return nil
	})
	return domain.NewTransportError("zadd", key, err)
}

func (s *GroupStore) Remove(ctx context.Context, group string, channel domain.ChannelName) error {
	key := s.key(group)
	err := s.shards.For(group).ZRem(ctx, key, string(channel)).Err()
	return domain.NewTransportError("zrem", key, err)
}

func (s *GroupStore) Count(ctx context.Context, group string, since time.Time) (int, error) {
	key := s.key(group)
	n, err := s.shards.For(group).ZCount(ctx, key, formatScore(since), "+inf").Result()
	if err != nil {
		return 0, domain.NewTransportError("zcount", key, err)
	}
	return int(n), nil
}

func (s *GroupStore) Members(ctx context.Context, group string, since time.Time) ([]domain.ChannelName, error) {
	key := s.key(group)
	names, err := s.shards.For(group).ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: formatScore(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, domain.NewTransportError("zrangebyscore", key, err)
	}
	out := make([]domain.ChannelName, len(names))
	for i, n := range names {
		out[i] = domain.ChannelName(n)
	}
	return out, nil
}

func (s *GroupStore) Ping(ctx context.Context) error {
	return domain.NewTransportError("ping", "*", s.shards.Ping(ctx))
}

func score(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatScore(t time.Time) string {
	return strconv.FormatFloat(score(t), 'f', -1, 64)
}
