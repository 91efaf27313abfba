package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gluk-w/ftpgate/internal/config"
	"github.com/gluk-w/ftpgate/internal/database"
	"github.com/gluk-w/ftpgate/internal/ftpproxy"
	"github.com/gluk-w/ftpgate/internal/handlers"
	"github.com/gluk-w/ftpgate/internal/logging"
	"github.com/gluk-w/ftpgate/internal/metrics"
	"github.com/gluk-w/ftpgate/internal/middleware"
	"github.com/gluk-w/ftpgate/internal/treestore"
)

func main() {
	config.Load()

	logger, flush := logging.Init(config.Cfg.LogLevel, config.Cfg.LogPath)
	defer flush()

	if err := database.Init(config.Cfg.DatabasePath); err != nil {
		logger.Fatal("database init", zap.Error(err))
	}
	defer database.Close()

	profiles, err := config.Cfg.Profiles()
	if err != nil {
		logger.Fatal("load connection profiles", zap.Error(err))
	}
	profile := ftpProfile(profiles[0])
	logger.Info("config",
		zap.String("listen", config.Cfg.ListenAddr),
		zap.String("ftp_profile", profile.Name),
		zap.String("ftp_addr", profile.Addr()),
		zap.Bool("ftp_tls", profile.TLS),
		zap.Duration("refresh_interval", config.Cfg.RefreshInterval))

	refreshLog := database.NewRefreshLog(database.DB, config.Cfg.RefreshHistoryMax)
	handlers.RefreshLog = refreshLog

	opts := ftpproxy.Options{
		Profile:         profile,
		Logger:          logger,
		Metrics:         metrics.FTP{},
		History:         refreshLog,
		OpTimeout:       config.Cfg.OpTimeout,
		MaxDepth:        config.Cfg.TreeMaxDepth,
		RefreshInterval: config.Cfg.RefreshInterval,
		RefreshTimeout:  config.Cfg.RefreshTimeout,
		HealthInterval:  config.Cfg.HealthInterval,

		ConnectRateLimit: config.Cfg.ConnectRateLimit,
	}

	// Redis is optional; without it the cached tree lives only in memory.
	if config.Cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: config.Cfg.RedisAddr})
		defer rdb.Close()
		store := treestore.New(rdb, config.Cfg.RedisKey, 0)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("tree mirror unavailable, continuing without warm start", zap.Error(err))
		}
		cancel()
		opts.Mirror = store
	}

	ftpMgr := ftpproxy.NewManager(opts)
	handlers.FTPMgr = ftpMgr

	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	if err := ftpMgr.StartRefresher(ctx); err != nil {
		logger.Fatal("start tree refresher", zap.Error(err))
	}
	ftpMgr.StartHealthChecker(ctx)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLog(logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.HealthCheck)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", handlers.MountFTP)

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	cancelBackground()
	ftpMgr.CloseAll()
	logger.Info("server stopped")
}

// ftpProfile converts a configured profile into the transport's form.
func ftpProfile(p config.Profile) ftpproxy.Profile {
	return ftpproxy.Profile{
		Name:     p.Name,
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: p.Password,
		TLS:      p.TLS,
		Timeout:  p.Timeout,
	}
}
