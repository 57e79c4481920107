// Package presence derives printer/viewer presence from group liveness and
// routes typed envelopes between printer agents, web viewers and tunnels.
package presence

import (
	"context"
	"fmt"

	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/rs/zerolog/log"
)

// Router holds no state of its own; every decision is recomputed from the
// layer's view of the groups.
type Router struct {
	layer core.ChannelLayer
	cache core.StatusCache
}

func NewRouter(layer core.ChannelLayer, cache core.StatusCache) *Router {
	return &Router{layer: layer, cache: cache}
}

type sendOptions struct {
	channel      domain.ChannelName
	viewingCount *int
}

type Option func(*sendOptions)

// ToChannel addresses a single channel instead of the entity's group.
func ToChannel(c domain.ChannelName) Option {
	return func(o *sendOptions) { o.channel = c }
}

// WithViewingCount supplies an already known viewer count.
func WithViewingCount(n int) Option {
	return func(o *sendOptions) { o.viewingCount = &n }
}

func resolve(opts []Option) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OnConnectionChange reacts to a connect or disconnect in group.
//
// A p_web change pushes the viewing flag to the printer agent. A p_octo
// change clears the cached status when the last agent connection is gone
// and tells viewers to refresh. Other kinds have no side effects.
func (r *Router) OnConnectionChange(ctx context.Context, group string) error {
	g, err := domain.ParseGroupName(group)
	if err != nil {
		return fmt.Errorf("connection change: %w", err)
	}
	switch g.Kind {
	case domain.KindWeb:
		return r.SendViewingStatus(ctx, g.EntityID)
	case domain.KindPrinter:
		n, err := r.layer.CountActive(ctx, domain.PrinterGroup(g.EntityID).String())
		if err != nil {
			return fmt.Errorf("count %s: %w", group, err)
		}
		if n <= 0 {
			if err := r.cache.DeleteStatus(ctx, g.EntityID); err != nil {
				return fmt.Errorf("delete status %s: %w", g.EntityID, err)
			}
			log.Info().Str("module", "app.presence").Str("printer", string(g.EntityID)).Msg("printer went offline")
		}
		return r.SendStatusToWeb(ctx, g.EntityID)
	default:
		log.Debug().Str("module", "app.presence").Str("group", group).Msg("no presence for group kind")
		return nil
	}
}

// SendViewingStatus tells the printer agent whether anybody is watching.
func (r *Router) SendViewingStatus(ctx context.Context, id domain.PrinterID, opts ...Option) error {
	o := resolve(opts)
	var count int
	if o.viewingCount != nil {
		count = *o.viewingCount
	} else {
		n, err := r.layer.CountActive(ctx, domain.WebGroup(id).String())
		if err != nil {
			return fmt.Errorf("count viewers of %s: %w", id, err)
		}
		count = n
	}
	return r.sendPrinter(ctx, id, domain.PrinterMessage(domain.ViewingPayload(count > 0)), o)
}

// SendShouldWatchStatus evaluates printer.ShouldWatch and pushes the result
// to the agent. Nothing is sent when the evaluation fails.
func (r *Router) SendShouldWatchStatus(ctx context.Context, printer core.Printer, opts ...Option) error {
	watch, err := printer.ShouldWatch(ctx)
	if err != nil {
		return fmt.Errorf("should watch %s: %w", printer.ID(), err)
	}
	return r.sendPrinter(ctx, printer.ID(), domain.PrinterMessage(domain.ShouldWatchPayload(watch)), resolve(opts))
}

func (r *Router) SendToPrinter(ctx context.Context, id domain.PrinterID, payload map[string]any, opts ...Option) error {
	return r.sendPrinter(ctx, id, domain.PrinterMessage(payload), resolve(opts))
}

func (r *Router) sendPrinter(ctx context.Context, id domain.PrinterID, env domain.Envelope, o sendOptions) error {
	if o.channel != "" {
		return r.layer.Send(ctx, o.channel, env)
	}
	return r.groupSend(ctx, domain.PrinterGroup(id).String(), env)
}

func (r *Router) SendToWeb(ctx context.Context, id domain.PrinterID, payload map[string]any) error {
	return r.groupSend(ctx, domain.WebGroup(id).String(), domain.WebMessage(payload))
}

// SendStatusToWeb asks viewers to re-fetch the printer status.
func (r *Router) SendStatusToWeb(ctx context.Context, id domain.PrinterID) error {
	return r.groupSend(ctx, domain.WebGroup(id).String(), domain.PrinterStatus())
}

func (r *Router) SendSignalingToWeb(ctx context.Context, id domain.PrinterID, msg any) error {
	return r.groupSend(ctx, domain.JanusWebGroup(id).String(), domain.JanusMessage(msg))
}

// SendToTunnel relays data to an arbitrary tunnel group.
func (r *Router) SendToTunnel(ctx context.Context, group string, data any) error {
	return r.groupSend(ctx, group, domain.TunnelMessage(data))
}

func (r *Router) CountConnections(ctx context.Context, group string, opts ...core.CountOption) (int, error) {
	return r.layer.CountActive(ctx, group, opts...)
}

func (r *Router) Touch(ctx context.Context, group string, channel domain.ChannelName) error {
	return r.layer.Touch(ctx, group, channel)
}

func (r *Router) groupSend(ctx context.Context, group string, env domain.Envelope) error {
	res, err := r.layer.GroupSend(ctx, group, env)
	if err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		log.Debug().
			Str("module", "app.presence").
			Str("group", group).
			Str("type", string(env.Type())).
			Int("failed", len(res.Failed)).
			Msg("partial group delivery")
	}
	return nil
}
