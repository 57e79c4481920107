package presence

import (
	"context"
	"time"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
)

const DefaultBlockingTimeout = 10 * time.Second

// Blocking wraps a Router for callers without a context. Each method blocks
// until the router call returns or the timeout passes.
type Blocking struct {
	router  *Router
	timeout time.Duration
}

func NewBlocking(r *Router, timeout time.Duration) *Blocking {
	if timeout <= 0 {
		timeout = DefaultBlockingTimeout
	}
	return &Blocking{router: r, timeout: timeout}
}

func (b *Blocking) run(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return fn(ctx)
}

func (b *Blocking) OnConnectionChange(group string) error {
	return b.run(func(ctx context.Context) error { return b.router.OnConnectionChange(ctx, group) })
}

func (b *Blocking) SendViewingStatus(id domain.PrinterID, opts ...Option) error {
	return b.run(func(ctx context.Context) error { return b.router.SendViewingStatus(ctx, id, opts...) })
}

func (b *Blocking) SendShouldWatchStatus(p core.Printer, opts ...Option) error {
	return b.run(func(ctx context.Context) error { return b.router.SendShouldWatchStatus(ctx, p, opts...) })
}

func (b *Blocking) SendToPrinter(id domain.PrinterID, payload map[string]any, opts ...Option) error {
	return b.run(func(ctx context.Context) error { return b.router.SendToPrinter(ctx, id, payload, opts...) })
}

func (b *Blocking) SendToWeb(id domain.PrinterID, payload map[string]any) error {
	return b.run(func(ctx context.Context) error { return b.router.SendToWeb(ctx, id, payload) })
}

func (b *Blocking) SendStatusToWeb(id domain.PrinterID) error {
	return b.run(func(ctx context.Context) error { return b.router.SendStatusToWeb(ctx, id) })
}

func (b *Blocking) SendSignalingToWeb(id domain.PrinterID, msg any) error {
	return b.run(func(ctx context.Context) error { return b.router.SendSignalingToWeb(ctx, id, msg) })
}

func (b *Blocking) SendToTunnel(group string, data any) error {
	return b.run(func(ctx context.Context) error { return b.router.SendToTunnel(ctx, group, data) })
}

func (b *Blocking) CountConnections(group string, opts ...core.CountOption) (int, error) {
	var n int
	err := b.run(func(ctx context.Context) error {
		var err error
		n, err = b.router.CountConnections(ctx, group, opts...)
		return err
	})
	return n, err
}

func (b *Blocking) Touch(group string, channel domain.ChannelName) error {
	return b.run(func(ctx context.Context) error { return b.router.Touch(ctx, group, channel) })
}
