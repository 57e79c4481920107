package http

import (
	"context"

	"github.com/dkeye/octopresence/internal/adapters/signal"
	"github.com/dkeye/octopresence/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

const clientTokenKey = "client_token"

// ClientTokenMiddleware keeps a per-client token in the cookie session and
// exposes it as "client_token" on the gin context. Sockets are tagged with it.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, api *API, ws *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no session secret configured; client tokens reset on restart")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("PresenceSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", api.healthz)

	groups := r.Group("/api/groups/:group")
	groups.GET("/connections", api.countConnections)
	groups.POST("/touch", api.touch)
	groups.POST("/changes", api.connectionChange)

	printers := r.Group("/api/printers/:id")
	printers.POST("/messages", api.sendToPrinter)
	printers.POST("/web-messages", api.sendToWeb)
	printers.POST("/status", api.sendStatus)
	printers.POST("/janus", api.sendJanus)
	printers.POST("/viewing-status", api.sendViewingStatus)
	if api.Printers != nil {
		printers.POST("/should-watch", api.sendShouldWatch)
	}

	r.POST("/api/tunnels/:group/messages", api.sendToTunnel)

	if api.Sessions != nil {
		groups.GET("/sessions", api.listSessions)
		r.DELETE("/api/sessions/:channel", api.closeSession)
	}

	if ws != nil {
		r.GET("/ws/:kind/:id", func(c *gin.Context) {
			log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
			ws.HandleSignal(ctx, c)
		})
	}

	log.Info().Str("module", "adapters.http").Bool("should_watch", api.Printers != nil).Msg("router setup")
	return r
}
