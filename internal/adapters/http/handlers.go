package http

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/octopresence/internal/adapters/rtc"
	"github.com/dkeye/octopresence/internal/app"
	"github.com/dkeye/octopresence/internal/app/presence"
	"github.com/dkeye/octopresence/internal/core"
	"github.com/dkeye/octopresence/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Pinger is a backing store the health check consults.
type Pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	Router *presence.Router
	// Printers is optional; without it the should-watch route is not mounted.
	Printers core.PrinterRepository
	Health   map[string]Pinger
	// Sessions lists and closes the sockets served by this process.
	Sessions *app.Registry
}

type TouchRequest struct {
	Channel string `json:"channel"`
}

type PrinterMessageRequest struct {
	Payload   map[string]any `json:"payload"`
	ToChannel string         `json:"to_channel,omitempty"`
}

type WebMessageRequest struct {
	Payload map[string]any `json:"payload"`
}

type JanusRequest struct {
	Msg any `json:"msg"`
}

type ViewingStatusRequest struct {
	ViewingCount *int   `json:"viewing_count,omitempty"`
	ToChannel    string `json:"to_channel,omitempty"`
}

type ShouldWatchRequest struct {
	ToChannel string `json:"to_channel,omitempty"`
}

type TunnelRequest struct {
	Data any `json:"data"`
}

type CountResponse struct {
	Group       string `json:"group"`
	Connections int    `json:"connections"`
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var te *domain.TransportError
	switch {
	case errors.Is(err, domain.ErrInvalidGroupName),
		errors.Is(err, domain.ErrInvalidChannelName),
		errors.Is(err, core.ErrInvalidThreshold),
		errors.Is(err, rtc.ErrInvalidSignal):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPrinterNotFound),
		errors.Is(err, domain.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.As(err, &te), errors.Is(err, domain.ErrChannelFull):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func accepted(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func toChannel(name string) []presence.Option {
	if name == "" {
		return nil
	}
	return []presence.Option{presence.ToChannel(domain.ChannelName(name))}
}

func (a *API) healthz(c *gin.Context) {
	checks := make(gin.H, len(a.Health))
	healthy := true
	for name, p := range a.Health {
		if err := p.Ping(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}

// countConnections accepts threshold in seconds and now as a unix timestamp.
func (a *API) countConnections(c *gin.Context) {
	group := c.Param("group")
	var opts []core.CountOption
	if raw := c.Query("threshold"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a non-negative number of seconds"})
			return
		}
		opts = append(opts, core.WithThreshold(time.Duration(secs*float64(time.Second))))
	}
	if raw := c.Query("now"); raw != "" {
		ts, err := strconv.ParseFloat(raw, 64)
		if err != nil || ts <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "now must be a unix timestamp"})
			return
		}
		sec, frac := math.Modf(ts)
		opts = append(opts, core.At(time.Unix(int64(sec), int64(frac*1e9))))
	}
	n, err := a.Router.CountConnections(c.Request.Context(), group, opts...)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Group: group, Connections: n})
}

func (a *API) touch(c *gin.Context) {
	var req TouchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid channel"})
		return
	}
	if err := a.Router.Touch(c.Request.Context(), c.Param("group"), domain.ChannelName(req.Channel)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) connectionChange(c *gin.Context) {
	if err := a.Router.OnConnectionChange(c.Request.Context(), c.Param("group")); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

func (a *API) sendToPrinter(c *gin.Context) {
	var req PrinterMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid payload"})
		return
	}
	id := domain.PrinterID(c.Param("id"))
	if err := a.Router.SendToPrinter(c.Request.Context(), id, req.Payload, toChannel(req.ToChannel)...); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

func (a *API) sendToWeb(c *gin.Context) {
	var req WebMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid payload"})
		return
	}
	if err := a.Router.SendToWeb(c.Request.Context(), domain.PrinterID(c.Param("id")), req.Payload); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

func (a *API) sendStatus(c *gin.Context) {
	if err := a.Router.SendStatusToWeb(c.Request.Context(), domain.PrinterID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

func (a *API) sendJanus(c *gin.Context) {
	var req JanusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid msg"})
		return
	}
	if err := rtc.ValidateJanus(req.Msg); err != nil {
		fail(c, err)
		return
	}
	if err := a.Router.SendSignalingToWeb(c.Request.Context(), domain.PrinterID(c.Param("id")), req.Msg); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

func (a *API) sendViewingStatus(c *gin.Context) {
	var req ViewingStatusRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	opts := toChannel(req.ToChannel)
	if req.ViewingCount != nil {
		opts = append(opts, presence.WithViewingCount(*req.ViewingCount))
	}
	if err := a.Router.SendViewingStatus(c.Request.Context(), domain.PrinterID(c.Param("id")), opts...); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

func (a *API) sendShouldWatch(c *gin.Context) {
	var req ShouldWatchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}
	ctx := c.Request.Context()
	printer, err := a.Printers.Printer(ctx, domain.PrinterID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	if err := a.Router.SendShouldWatchStatus(ctx, printer, toChannel(req.ToChannel)...); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

func (a *API) sendToTunnel(c *gin.Context) {
	var req TunnelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid data"})
		return
	}
	if err := a.Router.SendToTunnel(c.Request.Context(), c.Param("group"), req.Data); err != nil {
		fail(c, err)
		return
	}
	accepted(c)
}

type SessionsResponse struct {
	Group    string        `json:"group"`
	Sessions []app.Session `json:"sessions"`
}

// listSessions reports the sockets this process holds for a group. Other
// nodes hold their own; CountConnections is the cluster-wide view.
func (a *API) listSessions(c *gin.Context) {
	group, err := domain.ParseGroupName(c.Param("group"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionsResponse{Group: group.String(), Sessions: a.Sessions.MembersOf(group)})
}

// closeSession stops a local socket. The socket leaves its group and a
// connection change is dispatched as on any disconnect.
func (a *API) closeSession(c *gin.Context) {
	channel := domain.ChannelName(c.Param("channel"))
	group, ok := a.Sessions.GroupOf(channel)
	if !ok || !a.Sessions.Cancel(channel) {
		fail(c, domain.ErrChannelNotFound)
		return
	}
	log.Info().
		Str("module", "adapters.http").
		Str("channel", string(channel)).
		Str("group", group.String()).
		Str("by", c.GetString("client_token")).
		Msg("session closed")
	c.JSON(http.StatusOK, gin.H{"channel": channel, "group": group.String()})
}
