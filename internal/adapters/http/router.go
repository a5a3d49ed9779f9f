package http

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ring/internal/adapters/signal"
	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/config"
	"github.com/dkeye/Ring/internal/core"
)

const sessionIdentityKey = "identity"

// Deps bundles what the HTTP surface needs: the live presence registry for
// the online view and the persistent stores behind the REST API.
type Deps struct {
	Registry *app.Registry
	Signal   *signal.Controller
	Users    core.UserStore
	Friends  core.FriendStore
	History  core.HistoryStore
}

// IdentityMiddleware copies the authenticated identity from the cookie
// session into the gin context. Handlers that require auth check for it.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		if id, ok := sess.Get(sessionIdentityKey).(string); ok && id != "" {
			c.Set("identity", id)
		}
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RingSessions", store))
	r.Use(IdentityMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	h := &handlers{deps: deps}

	api := r.Group("/api")
	api.POST("/users", h.createUser)
	api.POST("/login", h.login)
	api.GET("/users/search", h.searchUsers)
	api.GET("/me", h.me)

	api.GET("/online", h.online)
	api.GET("/history", h.history)

	api.POST("/friends/:identity", h.friendRequest)
	api.POST("/friends/:identity/respond", h.friendRespond)
	api.GET("/friends", h.friendsList)
	api.GET("/friends/requests", h.friendRequests)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("identity", c.GetString("identity")).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(c)
	})

	return r
}
