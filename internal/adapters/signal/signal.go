// Package signal is the WebSocket edge. Every socket gets its own channel in
// the layer, is touched into its group while open and discarded on close.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/octopresence/internal/app"
	"github.com/dkeye/octopresence/internal/app/presence"
	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Layer is the slice of the channel layer a socket needs.
type Layer interface {
	NewChannel(ctx context.Context) (domain.ChannelName, error)
	Receive(ctx context.Context, channel domain.ChannelName) (domain.Envelope, error)
	CloseChannel(ctx context.Context, channel domain.ChannelName) error
	Touch(ctx context.Context, group string, channel domain.ChannelName) error
	Discard(ctx context.Context, group string, channel domain.ChannelName) error
}

// Relay is the slice of the presence router inbound frames are routed to.
type Relay interface {
	SendToPrinter(ctx context.Context, id domain.PrinterID, payload map[string]any, opts ...presence.Option) error
	SendSignalingToWeb(ctx context.Context, id domain.PrinterID, msg any) error
	SendToTunnel(ctx context.Context, group string, data any) error
}

type Dispatcher interface {
	Dispatch(group string) error
}

type Options struct {
	ReadLimit     int64
	PingPeriod    time.Duration
	TouchInterval time.Duration
	SendBuffer    int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.TouchInterval <= 0 {
		o.TouchInterval = 5 * time.Minute
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

type SignalWSController struct {
	Layer    Layer
	Relay    Relay
	Changes  Dispatcher
	Registry *app.Registry
	Limiter  *ChannelRateLimiter
	Opts     Options
}

func NewSignalWSController(
	l Layer,
	relay Relay,
	changes Dispatcher,
	reg *app.Registry,
	limiter *ChannelRateLimiter,
	opts Options,
) *SignalWSController {
	return &SignalWSController{
		Layer:    l,
		Relay:    relay,
		Changes:  changes,
		Registry: reg,
		Limiter:  limiter,
		Opts:     opts.withDefaults(),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// session is one open socket bound to its channel and group.
type session struct {
	channel domain.ChannelName
	group   domain.GroupName
	conn    *WsSignalConn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal serves GET /ws/:kind/:id.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	group := domain.GroupName{Kind: domain.GroupKind(c.Param("kind")), EntityID: domain.PrinterID(c.Param("id"))}
	if !group.Kind.Known() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown group kind"})
		return
	}
	if err := domain.ValidateGroupKey(group.String()); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Opts.ReadLimit)

	channel, err := ctl.Layer.NewChannel(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("new channel")
		_ = ws.Close()
		return
	}
	sess := &session{
		channel: channel,
		group:   group,
		conn:    &WsSignalConn{conn: ws, send: make(chan core.Frame, ctl.Opts.SendBuffer)},
	}
	if err := ctl.Layer.Touch(ctx, group.String(), channel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("group", group.String()).Msg("initial touch")
		ctl.release(sess)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	client := c.GetString("client_token")
	ctl.Registry.Bind(channel, group, client, cancel)
	log.Info().
		Str("module", "signal").
		Str("group", group.String()).
		Str("channel", string(channel)).
		Str("client", client).
		Msg("new WS connection")
	ctl.dispatch(group)

	go ctl.serve(ctx, cancel, sess)
}

func (ctl *SignalWSController) serve(ctx context.Context, cancel context.CancelFunc, sess *session) {
	var wg conc.WaitGroup
	wg.Go(func() { ctl.writePump(ctx, sess.conn) })
	wg.Go(func() { ctl.mailboxPump(ctx, sess) })
	wg.Go(func() { ctl.touchLoop(ctx, sess) })
	wg.Go(func() {
		<-ctx.Done()
		sess.conn.Close()
	})

	ctl.readPump(ctx, sess)
	cancel()
	wg.Wait()

	// Unbind last; shutdown treats an empty registry as fully drained.
	ctl.release(sess)
	ctl.dispatch(sess.group)
	ctl.Registry.Unbind(sess.channel)
}

// release discards the channel from its group and frees the mailbox. It
// runs after the socket context is gone, so it gets its own deadline.
func (ctl *SignalWSController) release(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctl.Layer.Discard(ctx, sess.group.String(), sess.channel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("group", sess.group.String()).Msg("discard")
	}
	if err := ctl.Layer.CloseChannel(ctx, sess.channel); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("channel", string(sess.channel)).Msg("close channel")
	}
	if ctl.Limiter != nil {
		ctl.Limiter.Forget(sess.channel)
	}
	sess.conn.Close()
}

func (ctl *SignalWSController) dispatch(group domain.GroupName) {
	if ctl.Changes == nil {
		return
	}
	if err := ctl.Changes.Dispatch(group.String()); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("group", group.String()).Msg("dispatch connection change")
	}
}
