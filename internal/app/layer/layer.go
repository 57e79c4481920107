// Package layer is the channel layer: addressed sends, group fan-out and
// liveness-scored membership on top of a core.GroupStore and core.Transport.
package layer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultGroupExpiry   = 24 * time.Hour
	DefaultFanoutWorkers = 16
)

type Options struct {
	// LivenessWindow is the default CountActive threshold.
	LivenessWindow time.Duration
	// GroupExpiry bounds which members GroupSend still addresses.
	GroupExpiry   time.Duration
	FanoutWorkers int
	Policy        Policy
	Clock         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.LivenessWindow <= 0 {
		o.LivenessWindow = core.DefaultLivenessWindow
	}
	if o.GroupExpiry <= 0 {
		o.GroupExpiry = DefaultGroupExpiry
	}
	if o.FanoutWorkers < 1 {
		o.FanoutWorkers = DefaultFanoutWorkers
	}
	if o.Policy == nil {
		o.Policy = ReportOnly{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Layer implements core.ChannelLayer. It holds no membership state of its
// own; the store is the single source of truth.
type Layer struct {
	groups    core.GroupStore
	transport core.Transport
	opts      Options
}

var _ core.ChannelLayer = (*Layer)(nil)

func New(groups core.GroupStore, transport core.Transport, opts Options) *Layer {
	return &Layer{groups: groups, transport: transport, opts: opts.withDefaults()}
}

func (l *Layer) Send(ctx context.Context, channel domain.ChannelName, env domain.Envelope) error {
	if err := domain.ValidateChannelName(channel); err != nil {
		return err
	}
	if err := l.transport.Deliver(ctx, channel, env); err != nil {
		return fmt.Errorf("send %s to %s: %w", env.Type(), channel, err)
	}
	return nil
}

// GroupSend delivers env to every member touched within GroupExpiry.
// Per-member failures are logged and returned in the result; the error is
// reserved for a failed membership lookup.
func (l *Layer) GroupSend(ctx context.Context, group string, env domain.Envelope) (core.DeliveryResult, error) {
	if err := domain.ValidateGroupKey(group); err != nil {
		return core.DeliveryResult{}, err
	}
	members, err := l.groups.Members(ctx, group, l.opts.Clock().Add(-l.opts.GroupExpiry))
	if err != nil {
		return core.DeliveryResult{}, fmt.Errorf("group send %s: %w", group, err)
	}

	var (
		mu  sync.Mutex
		res core.DeliveryResult
	)
	p := pool.New().WithMaxGoroutines(l.opts.FanoutWorkers)
	for _, ch := range members {
		p.Go(func() {
			err := l.transport.Deliver(ctx, ch, env)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, core.DeliveryFailure{Channel: ch, Err: err})
				return
			}
			res.Delivered++
		})
	}
	p.Wait()

	for _, f := range res.Failed {
		log.Warn().Err(f.Err).
			Str("module", "app.layer").
			Str("group", group).
			Str("channel", string(f.Channel)).
			Str("type", string(env.Type())).
			Msg("group member delivery failed")
		if l.opts.Policy.OnDeliveryFailure(group, f) == PruneMember {
			if err := l.groups.Remove(ctx, group, f.Channel); err != nil {
				log.Error().Err(err).Str("module", "app.layer").Str("group", group).Msg("prune member")
			}
		}
	}
	log.Debug().
		Str("module", "app.layer").
		Str("group", group).
		Str("type", string(env.Type())).
		Int("sent_to", res.Delivered).
		Int("failed", len(res.Failed)).
		Msg("group send result")
	return res, nil
}

// Touch adds channel to group or renews its liveness score.
func (l *Layer) Touch(ctx context.Context, group string, channel domain.ChannelName) error {
	if err := domain.ValidateGroupKey(group); err != nil {
		return err
	}
	if err := domain.ValidateChannelName(channel); err != nil {
		return err
	}
	return l.groups.Add(ctx, group, channel, l.opts.Clock())
}

func (l *Layer) Discard(ctx context.Context, group string, channel domain.ChannelName) error {
	if err := domain.ValidateGroupKey(group); err != nil {
		return err
	}
	return l.groups.Remove(ctx, group, channel)
}

// CountActive counts members touched within the threshold before now.
func (l *Layer) CountActive(ctx context.Context, group string, opts ...core.CountOption) (int, error) {
	if err := domain.ValidateGroupKey(group); err != nil {
		return 0, err
	}
	since, err := core.ResolveCount(l.opts.LivenessWindow, l.opts.Clock, opts...)
	if err != nil {
		return 0, err
	}
	return l.groups.Count(ctx, group, since)
}

// NewChannel allocates a mailbox for a locally consumed client.
func (l *Layer) NewChannel(ctx context.Context) (domain.ChannelName, error) {
	name := domain.NewChannelName()
	if err := l.transport.Open(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

func (l *Layer) Receive(ctx context.Context, channel domain.ChannelName) (domain.Envelope, error) {
	return l.transport.Receive(ctx, channel)
}

func (l *Layer) CloseChannel(ctx context.Context, channel domain.ChannelName) error {
	return l.transport.Close(ctx, channel)
}

func (l *Layer) Ping(ctx context.Context) error {
	return l.groups.Ping(ctx)
}
