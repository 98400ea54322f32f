package main

import (
	"context"
	"database/sql"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"enjoyhub/internal/adapters/media"
	"enjoyhub/internal/adapters/observability"
	"enjoyhub/internal/app"
	"enjoyhub/internal/shared"
	mysqlrepo "enjoyhub/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	log.Info().
		Str("folder", cfg.MediaFolder).
		Int("workers", cfg.SweepWorkers).
		Dur("grace", cfg.SweepGrace).
		Bool("dry_run", cfg.SweepDryRun).
		Msg("media sweep starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	cdn, err := media.New(cfg.MediaAPIBase, cfg.MediaCloud, cfg.MediaKey, cfg.MediaSecret, cfg.MediaRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media client")
	}
	sweeper := app.NewMediaSweeper(cdn, repo, observability.SweepCounter{}, cfg.SweepGrace, cfg.SweepDryRun)
	sem := semaphore.NewWeighted(int64(cfg.SweepWorkers))
	var (
		wg       sync.WaitGroup
		seen     atomic.Int64
		failures atomic.Int64
	)

	cursor := ""
	for {
		page, err := cdn.List(ctx, cfg.MediaFolder+"/", cursor)
		if err != nil {
			log.Error().Err(err).Str("cursor", cursor).Msg("listing assets failed; stopping")
			break
		}
		for _, asset := range page.Assets {
			// acquire before launching the goroutine; release inside it
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Warn().Err(err).Msg("sweep interrupted")
				break
			}
			seen.Add(1)

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				outcome, err := sweeper.SweepAsset(ctx, asset)
				if err != nil {
					failures.Add(1)
					log.Warn().Str("public_id", asset.PublicID).Str("outcome", string(outcome)).Err(err).Msg("sweep failed")
					return
				}
				log.Debug().Str("public_id", asset.PublicID).Str("outcome", string(outcome)).Msg("swept")
			}()
		}
		if page.NextCursor == "" || ctx.Err() != nil {
			break
		}
		cursor = page.NextCursor
	}

	wg.Wait()
	_ = db.Close()
	log.Info().
		Int64("assets", seen.Load()).
		Int64("failures", failures.Load()).
		Msg("media sweep completed")
}
