package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/octopresence/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.Opts.PingPeriod * 10 / 9
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.Opts.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sess *session) {
	defer log.Info().Str("module", "signal").Str("channel", string(sess.channel)).Msg("readPump closing")

	conn := sess.conn.conn
	_ = conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("channel", string(sess.channel)).Msg("readPump read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(ctl.pongWait()))
		if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.channel) {
			ctl.sendJSON(sess.conn, map[string]any{"type": "error", "error": "rate_limited"})
			continue
		}
		ctl.handleSignal(ctx, sess, data)
	}
}

// mailboxPump forwards envelopes addressed to the socket's channel.
func (ctl *SignalWSController) mailboxPump(ctx context.Context, sess *session) {
	for {
		env, err := ctl.Layer.Receive(ctx, sess.channel)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrChannelNotFound) {
				return
			}
			log.Error().Err(err).Str("module", "signal").Str("channel", string(sess.channel)).Msg("mailbox receive")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		ctl.sendJSON(sess.conn, env)
	}
}

// touchLoop keeps the channel inside the liveness window while the socket
// stays open.
func (ctl *SignalWSController) touchLoop(ctx context.Context, sess *session) {
	t := time.NewTicker(ctl.Opts.TouchInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ctl.touch(ctx, sess)
		}
	}
}

func (ctl *SignalWSController) touch(ctx context.Context, sess *session) {
	if err := ctl.Layer.Touch(ctx, sess.group.String(), sess.channel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("group", sess.group.String()).Msg("touch")
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess *session, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(sess.conn, "bad_payload")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(ctx, sess)
	case "janus":
		ctl.handleJanus(ctx, sess, data)
	case "tunnel":
		ctl.handleTunnel(ctx, sess, data)
	case "printer":
		ctl.handlePrinter(ctx, sess, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(sess.conn, "unknown_type")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); errors.Is(err, ErrBackpressure) {
		log.Warn().Str("module", "signal").Msg("sendJSON dropped frame")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code string) {
	ctl.sendJSON(c, map[string]any{"type": "error", "error": code})
}
