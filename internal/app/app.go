// Package app wires configuration into the store, collaborators and
// services shared by the api and sweeper binaries.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/safar/go-rental-store/internal/cache"
	"github.com/safar/go-rental-store/internal/config"
	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/invoice"
	"github.com/safar/go-rental-store/internal/metrics"
	"github.com/safar/go-rental-store/internal/notify"
	"github.com/safar/go-rental-store/internal/payment"
	"github.com/safar/go-rental-store/internal/service"
	"github.com/safar/go-rental-store/internal/store"
	"github.com/safar/go-rental-store/internal/store/memstore"
)

type App struct {
	Store    store.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Locks    *service.InventoryLocks
	Carts    *service.CartService
	Orders   *service.OrderService
	Checkout *service.CheckoutService

	closers []func() error
	log     zerolog.Logger
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{log: log}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(a.Registry)
	}

	st, err := a.openStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = st

	cartCache, err := a.openCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier := a.openNotifier(cfg)

	if !cfg.Payment.Sandbox {
		a.Close()
		return nil, fmt.Errorf("no live payment gateway is configured; set PAYMENT_SANDBOX=true")
	}
	sandbox := payment.NewSandbox(cfg.Payment.SandboxSecret, cfg.Payment.Currency)
	gateway := payment.NewBreaker(sandbox, cfg.Payment.BreakerThreshold, cfg.Payment.BreakerTimeout, log)

	a.Locks = service.NewInventoryLocks(st, log, a.Metrics, nil)
	a.Carts = service.NewCartService(st, cartCache, log, a.Metrics, nil)
	a.Orders = service.NewOrderService(service.OrderServiceDeps{
		Store:    st,
		Locks:    a.Locks,
		Payments: gateway,
		Notifier: notifier,
		Auditor:  notify.NewAuditLogger(log),
		Log:      log,
		Metrics:  a.Metrics,
		Config: service.OrderConfig{
			SweepBatchSize:   cfg.Rental.SweepBatchSize,
			RefundBatchSize:  cfg.Rental.RefundRetryLimit,
			DocumentDeadline: cfg.Rental.DocumentDeadline,
		},
	})
	a.Checkout = service.NewCheckoutService(st, a.Carts, a.Orders, gateway, invoice.NewService(st, log, nil), log, a.Metrics, nil)

	return a, nil
}

func (a *App) openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		a.log.Warn().Msg("using in-memory store, data is lost on exit")
		return memstore.New(), nil
	default:
		db, err := database.NewConnection(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.log.Info().Msg("connected to database")
		return store.NewPostgres(db, cfg.Database.MaxRetries), nil
	}
}

func (a *App) openCache(ctx context.Context, cfg *config.Config) (cache.CartCache, error) {
	if !cfg.Redis.Enabled {
		return cache.Noop{}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	a.closers = append(a.closers, client.Close)
	a.log.Info().Str("addr", cfg.Redis.Addr).Msg("cart cache enabled")
	return cache.NewRedisCache(client, cfg.Redis.CartTTL), nil
}

func (a *App) openNotifier(cfg *config.Config) service.Notifier {
	if !cfg.Kafka.Enabled {
		return notify.NewLogNotifier(a.log)
	}
	pub := notify.NewPublisher(notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), a.log)
	a.closers = append(a.closers, pub.Close)
	a.log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing order events to kafka")
	return pub
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
