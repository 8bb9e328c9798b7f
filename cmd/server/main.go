// Package main runs the meeting room server: WebSocket rooms, static landing page and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vimeet/server/config"
	"github.com/vimeet/server/internal/metrics"
	"github.com/vimeet/server/internal/middleware"
	"github.com/vimeet/server/internal/realtime"
	"github.com/vimeet/server/internal/rooms"
	"github.com/vimeet/server/pkg/redis"
	"github.com/vimeet/server/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var mirror realtime.EventPublisher
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis mirror disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			rm := realtime.NewRedisMirror(rdb.Client, logger)
			go rm.Run(ctx)
			mirror = rm
		}
	}

	hub := realtime.NewHub(logger, m, mirror)
	go hub.Run(ctx)

	roomHandler := rooms.NewHandler(hub)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/static/websocket.html") })
	router.Static("/static", cfg.Server.StaticDir)
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/rooms/:room", roomHandler.Get)

	router.GET("/ws/:room/:name/", realtime.ServeWs(hub, logger, m, realtime.Options{
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		ClientTimeout:     cfg.Realtime.ClientTimeout,
		OutboxSize:        cfg.Realtime.OutboxSize,
	}))

	// WriteTimeout is left unset: websocket sessions outlive any request deadline.
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	cancel()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
