package router

import (
	"pulse/config"
	"pulse/internal/handler"
	"pulse/internal/middleware"
	"pulse/internal/repository"
	"pulse/internal/service"
	"pulse/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the long-lived components the routes are served from.
type Deps struct {
	Hub        *ws.Hub
	Dispatcher *ws.Dispatcher
	Scheduler  *service.Scheduler
	Calls      *repository.CallRepository
	Limiter    *middleware.RateLimiter
}

func Setup(cfg *config.Config, deps Deps, log *zap.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log.Named("http")))

	presenceHandler := handler.NewPresenceHandler(deps.Hub)
	scheduledHandler := handler.NewScheduledHandler(deps.Scheduler)
	callHandler := handler.NewCallHandler(deps.Calls)

	r.GET("/api/health", handler.Health)
	r.GET("/ws", handler.UpgradeSocketWS(cfg, deps.Dispatcher, log.Named("socket")))

	v1 := r.Group("/api/v1")
	if deps.Limiter != nil {
		v1.Use(middleware.RateLimit(deps.Limiter))
	}
	v1.Use(middleware.AuthRequired(&cfg.JWT))
	{
		v1.GET("/presence/online", presenceHandler.ListOnline)
		v1.GET("/presence/:user_id", presenceHandler.GetPresence)

		v1.POST("/messages/schedule", scheduledHandler.Schedule)
		v1.GET("/messages/scheduled/:chat_id", scheduledHandler.ListPending)
		v1.DELETE("/messages/scheduled/:id", scheduledHandler.Cancel)

		v1.GET("/calls", callHandler.List)
	}
	return r
}
