package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/auth"
	"github.com/hiktan44/whatsappmini-sub000/internal/handler"
	"github.com/hiktan44/whatsappmini-sub000/internal/hub"
	"github.com/hiktan44/whatsappmini-sub000/internal/middleware"
	"github.com/hiktan44/whatsappmini-sub000/internal/session"
)

type Deps struct {
	Service     session.Service
	Counter     handler.Counter
	Store       handler.DegradedChecker // nil when running on the in-memory store
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
	MaxSessions int
	Logger      zerolog.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{
		Counter:     deps.Counter,
		Store:       deps.Store,
		MaxSessions: deps.MaxSessions,
		StartedAt:   time.Now(),
	}
	r.GET("/health", healthHandler.Health)

	sessionHandler := &handler.SessionHandler{Service: deps.Service, Logger: deps.Logger}
	initLimiter := middleware.NewRateLimiter(10, time.Minute)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	protected.POST("/initialize-session", middleware.RateLimitPerUser(initLimiter), sessionHandler.Initialize)
	protected.POST("/session-status", sessionHandler.Status)
	protected.POST("/simulate-scan", sessionHandler.SimulateScan)
	protected.POST("/disconnect", sessionHandler.Disconnect)

	wsHandler := &handler.WebSocketHandler{Hub: deps.Hub, TokenConfig: deps.TokenConfig}
	r.GET("/v1/ws", wsHandler.Serve)

	return r
}
