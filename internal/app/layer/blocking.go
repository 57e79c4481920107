package layer

import (
	"context"
	"time"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
)

const DefaultBlockingTimeout = 10 * time.Second

// Blocking exposes the layer to call sites that have no context. Every
// method blocks the calling goroutine until the operation finishes or the
// timeout elapses, and returns the same errors as the Layer method.
type Blocking struct {
	layer   core.ChannelLayer
	timeout time.Duration
}

func NewBlocking(l core.ChannelLayer, timeout time.Duration) *Blocking {
	if timeout <= 0 {
		timeout = DefaultBlockingTimeout
	}
	return &Blocking{layer: l, timeout: timeout}
}

func (b *Blocking) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

func (b *Blocking) Send(channel domain.ChannelName, env domain.Envelope) error {
	ctx, cancel := b.context()
	defer cancel()
	return b.layer.Send(ctx, channel, env)
}

func (b *Blocking) GroupSend(group string, env domain.Envelope) (core.DeliveryResult, error) {
	ctx, cancel := b.context()
	defer cancel()
	return b.layer.GroupSend(ctx, group, env)
}

func (b *Blocking) Touch(group string, channel domain.ChannelName) error {
	ctx, cancel := b.context()
	defer cancel()
	return b.layer.Touch(ctx, group, channel)
}

func (b *Blocking) Discard(group string, channel domain.ChannelName) error {
	ctx, cancel := b.context()
	defer cancel()
	return b.layer.Discard(ctx, group, channel)
}

func (b *Blocking) CountActive(group string, opts ...core.CountOption) (int, error) {
	ctx, cancel := b.context()
	defer cancel()
	return b.layer.CountActive(ctx, group, opts...)
}
