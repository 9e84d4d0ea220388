package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/catalog"
	"github.com/ariefcatur/go-cart-stock/internal/compensation"
	"github.com/ariefcatur/go-cart-stock/internal/config"
	kafkax "github.com/ariefcatur/go-cart-stock/internal/kafka"
	"github.com/ariefcatur/go-cart-stock/internal/obs"
	"github.com/ariefcatur/go-cart-stock/internal/orders"
	"github.com/ariefcatur/go-cart-stock/internal/postgres"
	"github.com/ariefcatur/go-cart-stock/internal/redisx"
	"github.com/ariefcatur/go-cart-stock/internal/retry"
	"github.com/ariefcatur/go-cart-stock/internal/stock"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-compensator"
	log := obs.NewLogger(service)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &compensation.Service{
		Stock: &stock.Coordinator{
			Ledger:  stock.NewLedger(rdb, log),
			Catalog: &catalog.PostgresStore{DB: db},
			LockTTL: cfg.LockTTL,
			Log:     log,
			Metrics: obs.NewMetrics(prometheus.NewRegistry()),
		},
		Redis:       rdb,
		Retry:       retry.Options{MaxTries: cfg.CompensatorMaxTries, Interval: compensation.DefaultRetry.Interval},
		Log:         log,
		ServiceName: service,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.CompensatorGroup, orders.TopicCompensationFailed, cfg.CompensatorWorkers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("compensator started",
			zap.String("group", cfg.CompensatorGroup),
			zap.String("topic", orders.TopicCompensationFailed),
			zap.Int("workers", cfg.CompensatorWorkers),
		)
		if err := cons.Start(ctx, svc.HandleCompensationFailed); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down compensator")
	cancel()
	<-done
}
