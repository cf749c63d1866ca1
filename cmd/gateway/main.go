package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nusalink.id/internal/authn"
	"nusalink.id/internal/backend"
	"nusalink.id/internal/config"
	"nusalink.id/internal/httpapi"
	"nusalink.id/internal/obs"
	"nusalink.id/internal/session"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := obs.InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("logger: %v", err)
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	client, err := backend.New(cfg.BackendBaseURL)
	if err != nil {
		logger.Fatal("backend client", zap.Error(err))
	}
	manager, err := authn.NewManager(client)
	if err != nil {
		logger.Fatal("auth manager", zap.Error(err))
	}

	// Value tier: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db     *sql.DB
		values httpapi.ValueTierFactory
	)
	if cfg.PostgresDSN != "" {
		db, err = session.OpenDB(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := session.EnsureSchema(schemaCtx, db); err != nil {
			cancel()
			logger.Fatal("ensure schema", zap.Error(err))
		}
		cancel()
		values = httpapi.PGValueTiers(db)
	} else {
		logger.Warn("no NUSALINK_PG_DSN set, sessions will not survive restarts")
		values = httpapi.MemoryValueTiers()
	}

	api, err := httpapi.New(httpapi.Options{
		Manager:    manager,
		Values:     values,
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		CookieCfg: httpapi.CookieConfig{
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		logger.Fatal("api", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting nusalink-gateway",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	logger.Info("stopped")
}
