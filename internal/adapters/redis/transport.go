package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/octopresence/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultChannelCapacity = 100
	DefaultChannelExpiry   = 60 * time.Second
	receivePoll            = time.Second
)

// Transport stores each channel's mailbox as a Redis list. A list that does
// not exist is indistinguishable from an empty one, so Deliver cannot report
// domain.ErrChannelNotFound; unread mailboxes expire instead.
type Transport struct {
	shards   *Shards
	prefix   string
	capacity int64
	expiry   time.Duration
}

func NewTransport(shards *Shards, prefix string, capacity int, expiry time.Duration) *Transport {
	if capacity < 1 {
		capacity = DefaultChannelCapacity
	}
	if expiry <= 0 {
		expiry = DefaultChannelExpiry
	}
	return &Transport{shards: shards, prefix: prefix, capacity: int64(capacity), expiry: expiry}
}

func (t *Transport) key(channel domain.ChannelName) string {
	return t.prefix + ":channel:" + string(channel)
}

func (t *Transport) Open(context.Context, domain.ChannelName) error { return nil }

// pushScript appends ARGV[2] to the mailbox unless it already holds ARGV[1]
// envelopes, and refreshes the TTL. Returns 0 when the mailbox is full.
var pushScript = goredis.NewScript(`
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (t *Transport) Deliver(ctx context.Context, channel domain.ChannelName, env domain.Envelope) error {
	key := t.key(channel)
	c := t.shards.For(string(channel))

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	pushed, err := pushScript.Run(ctx, c, []string{key}, t.capacity, body, max(int64(t.expiry/time.Second), 1)).Int()
	if err != nil {
		return domain.NewTransportError("rpush", key, err)
	}
	if pushed == 0 {
		return domain.ErrChannelFull
	}
	return nil
}

// Receive polls with BLPOP so a cancelled ctx is noticed within a second
// even on servers that ignore client-side deadlines.
func (t *Transport) Receive(ctx context.Context, channel domain.ChannelName) (domain.Envelope, error) {
	key := t.key(channel)
	c := t.shards.For(string(channel))
	for {
		if err := ctx.Err(); err != nil {
			return domain.Envelope{}, err
		}
		res, err := c.BLPop(ctx, receivePoll, key).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return domain.Envelope{}, ctx.Err()
			}
			return domain.Envelope{}, domain.NewTransportError("blpop", key, err)
		}
		var env domain.Envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			log.Error().Err(err).Str("module", "adapters.redis").Str("channel", string(channel)).Msg("dropping undecodable envelope")
			continue
		}
		return env, nil
	}
}

func (t *Transport) Close(ctx context.Context, channel domain.ChannelName) error {
	key := t.key(channel)
	err := t.shards.For(string(channel)).Del(ctx, key).Err()
	return domain.NewTransportError("del", key, err)
}
