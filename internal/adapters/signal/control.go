package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/octopresence/internal/adapters/rtc"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(ctx context.Context, sess *session) {
	ctl.touch(ctx, sess)
	ctl.sendJSON(sess.conn, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

// handleJanus relays gateway signaling from a printer agent to viewers.
func (ctl *SignalWSController) handleJanus(ctx context.Context, sess *session, data []byte) {
	if sess.group.Kind != domain.KindPrinter {
		ctl.sendError(sess.conn, "forbidden")
		return
	}
	var p struct {
		Msg any `json:"msg"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(sess.conn, "bad_payload")
		return
	}
	if err := rtc.ValidateJanus(p.Msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("printer", string(sess.group.EntityID)).Msg("janus rejected")
		ctl.sendError(sess.conn, "invalid_signal")
		return
	}
	if err := ctl.Relay.SendSignalingToWeb(ctx, sess.group.EntityID, p.Msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("janus relay")
		ctl.sendError(sess.conn, "relay_failed")
	}
}

func (ctl *SignalWSController) handleTunnel(ctx context.Context, sess *session, data []byte) {
	if sess.group.Kind != domain.KindPrinter {
		ctl.sendError(sess.conn, "forbidden")
		return
	}
	var p struct {
		Group string `json:"group"`
		Data  any    `json:"data"`
	}
	if err := json.Unmarshal(data, &p); err != nil || domain.ValidateGroupKey(p.Group) != nil {
		ctl.sendError(sess.conn, "bad_payload")
		return
	}
	if err := ctl.Relay.SendToTunnel(ctx, p.Group, p.Data); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("group", p.Group).Msg("tunnel relay")
		ctl.sendError(sess.conn, "relay_failed")
	}
}

// handlePrinter forwards a viewer command to the printer agent.
func (ctl *SignalWSController) handlePrinter(ctx context.Context, sess *session, data []byte) {
	if sess.group.Kind != domain.KindWeb && sess.group.Kind != domain.KindJanusWeb {
		ctl.sendError(sess.conn, "forbidden")
		return
	}
	var p struct {
		Msg map[string]any `json:"msg"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Msg == nil {
		ctl.sendError(sess.conn, "bad_payload")
		return
	}
	if err := ctl.Relay.SendToPrinter(ctx, sess.group.EntityID, p.Msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("printer relay")
		ctl.sendError(sess.conn, "relay_failed")
	}
}
