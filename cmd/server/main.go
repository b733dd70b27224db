package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/auth"
	"github.com/hiktan44/whatsappmini-sub000/internal/config"
	"github.com/hiktan44/whatsappmini-sub000/internal/handler"
	"github.com/hiktan44/whatsappmini-sub000/internal/hub"
	"github.com/hiktan44/whatsappmini-sub000/internal/qr"
	"github.com/hiktan44/whatsappmini-sub000/internal/server"
	"github.com/hiktan44/whatsappmini-sub000/internal/session"
	"github.com/hiktan44/whatsappmini-sub000/internal/store"
	"github.com/hiktan44/whatsappmini-sub000/internal/waclient"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	gin.SetMode(cfg.GinMode)

	var (
		st         store.Store
		redisStore *store.Redis
	)
	if cfg.RedisAddr != "" {
		redisStore = store.NewRedis(store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		defer redisStore.Close()
		st = redisStore
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis session store")
	} else {
		st = store.NewMemory()
		logger.Info().Msg("using in-memory session store")
	}

	registry := qr.NewRegistry(st)
	clients := waclient.NewManager(&waclient.SimulatedFactory{QRDelay: cfg.QRIssueDelay}, logger)
	wsHub := hub.New()

	orch := session.NewOrchestrator(session.Deps{
		Store:    st,
		Registry: registry,
		Clients:  clients,
		Config:   cfg,
		Logger:   logger,
		Notifier: &handler.StatusNotifier{Hub: wsHub},
	})
	defer orch.Close()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: auth.Issuer,
	}

	var svc session.Service = orch
	if cfg.SessionBackend == config.BackendRemote {
		svc = session.NewDelegate(cfg.RemoteBaseURL, tokenCfg, orch, logger)
		logger.Info().Str("peer", cfg.RemoteBaseURL).Msg("delegating session operations to peer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	janitor := session.NewJanitor(orch, cfg.JanitorInterval, logger)
	go janitor.Run(ctx)

	routerDeps := server.Deps{
		Service:     svc,
		Counter:     orch,
		Hub:         wsHub,
		TokenConfig: tokenCfg,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	}
	if redisStore != nil {
		routerDeps.Store = redisStore
	}
	router := server.NewRouter(routerDeps)

	srv := server.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("listening")
		if err := server.Run(srv, cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
