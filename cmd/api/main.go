package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-assistant/internal/bridge"
	"call-assistant/internal/business"
	"call-assistant/internal/calls"
	"call-assistant/internal/config"
	"call-assistant/internal/limits"
	"call-assistant/internal/realtime"
	"call-assistant/internal/routing"
	"call-assistant/internal/telephony"
	"call-assistant/pkg/logger"
	"call-assistant/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := calls.NewPostgresStore(db)
	callCap := limits.NewCallCap(rdb, cfg.Agent.MaxConcurrentCalls, 0)
	recorder := telephony.NewRecorder(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)

	webhooks := &telephony.WebhookHandlers{
		Directory:            business.NewPostgresDirectory(db),
		Store:                store,
		Tracker:              calls.NewTracker(store),
		Strategy:             routing.AlwaysAI{},
		Cap:                  callCap,
		StreamURL:            cfg.MediaStreamURL(),
		RecordingCallbackURL: cfg.CallbackURL("/webhooks/twilio/recording-complete"),
		RecordingStatusURL:   cfg.CallbackURL("/webhooks/twilio/recording-status"),
	}

	dial := func(ctx context.Context, apiKey string) (bridge.AgentConn, error) {
		return realtime.Dial(ctx, cfg.Agent.RealtimeModel, apiKey)
	}
	mediaStream := bridge.NewHandler(
		dial,
		recorder,
		callCap,
		cfg.Agent.HandshakeTimeout,
		cfg.CallbackURL("/webhooks/twilio/recording-status"),
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, db, webhooks, mediaStream)

	// No global Read/WriteTimeout: the media stream endpoint holds its
	// connection for the duration of a phone call.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
