// Command sweeper runs the periodic order maintenance jobs: auto-approval,
// document timeouts, refund retries and expired lock release.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/safar/go-rental-store/internal/app"
	"github.com/safar/go-rental-store/internal/config"
	"github.com/safar/go-rental-store/internal/logger"
)

func main() {
	interval := flag.Duration("interval", 0, "repeat the sweep at this interval; zero runs once and exits")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.Log).With().Str("component", "sweeper").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialise application")
	}
	defer a.Close()

	if *interval <= 0 {
		sweep(ctx, a, cfg, log)
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	log.Info().Dur("interval", *interval).Msg("sweeper started")
	for {
		sweep(ctx, a, cfg, log)
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, a *app.App, cfg *config.Config, log zerolog.Logger) {
	jobs := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"auto_approval", a.Orders.ProcessAutoApprovals},
		{"document_timeout", a.Orders.ProcessDocumentTimeouts},
		{"refund_retry", func(ctx context.Context) (int, error) {
			return a.Orders.RetryFailedRefunds(ctx, cfg.Rental.RefundRetryLimit)
		}},
		{"lock_release", a.Locks.ReleaseExpired},
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		n, err := job.run(ctx)
		if err != nil {
			log.Error().Err(err).Str("job", job.name).Int("processed", n).Msg("sweep job failed")
			continue
		}
		log.Info().Str("job", job.name).Int("processed", n).Msg("sweep job finished")
	}
}
