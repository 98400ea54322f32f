package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"enjoyhub/internal/adapters/authprovider"
	server "enjoyhub/internal/adapters/http_server"
	"enjoyhub/internal/adapters/media"
	"enjoyhub/internal/adapters/observability"
	redisad "enjoyhub/internal/adapters/redis"
	"enjoyhub/internal/app"
	"enjoyhub/internal/shared"
	mysqlrepo "enjoyhub/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	observability.Serve(cfg.MetricsAddr)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; serving without cache hits")
	}
	cdn, err := media.New(cfg.MediaAPIBase, cfg.MediaCloud, cfg.MediaKey, cfg.MediaSecret, cfg.MediaRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media client")
	}
	provider, err := authprovider.New(cfg.AuthURL, cfg.AuthAnonKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth client")
	}
	verifier, err := authprovider.NewVerifier(cfg.AuthJWTSecret, cfg.AuthAudience)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session verifier")
	}

	q := app.NewQueryService(repo, cache, cfg.CacheTTL)
	l := app.NewListingService(repo, cdn, cache, cfg.MediaFolder)
	pages, err := server.NewPages(q)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse page templates")
	}

	// http
	srv := server.New(cfg.TrustProxy)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:     q,
		L:     l,
		Pages: pages,
		Auth: &server.Auth{
			Provider:  provider,
			Verifier:  verifier,
			Profiles:  l,
			PublicURL: cfg.PublicURL,
			Secure:    cfg.CookieSecure,
		},
		WriteRPS:   cfg.WriteRPS,
		WriteBurst: cfg.WriteBurst,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	_ = db.Close()
	log.Info().Msg("API stopped")
}
