package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-cart-stock/internal/cart"
	"github.com/ariefcatur/go-cart-stock/internal/catalog"
	"github.com/ariefcatur/go-cart-stock/internal/config"
	"github.com/ariefcatur/go-cart-stock/internal/httpx"
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
	log := obs.NewLogger(cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	// Kafka producers: order created & compensation failed
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	pCreated.Start(ctx)
	pComp := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicCompensationFailed, 1024, log)
	pComp.Start(ctx)

	// Core
	cat := &catalog.PostgresStore{DB: db}
	carts := cart.NewStore(rdb, log, metrics)
	carts.Retry = retry.Options{MaxTries: cfg.CartRetryMaxTries, Interval: cfg.CartRetryInterval}
	coord := &stock.Coordinator{
		Ledger:  stock.NewLedger(rdb, log),
		Catalog: cat,
		LockTTL: cfg.LockTTL,
		Log:     log,
		Metrics: metrics,
	}
	repo := &orders.Repo{DB: db}
	asm := &orders.Assembler{
		Carts:              carts,
		Stock:              coord,
		Orders:             repo,
		Log:                log,
		Metrics:            metrics,
		Service:            cfg.ServiceName,
		Created:            pCreated,
		CompensationFailed: pComp,
	}

	// HTTP
	router := httpx.NewRouter(httpx.RouterDeps{Log: log, Service: cfg.ServiceName, Metrics: metrics, Registry: reg})
	(&httpx.CartsHandler{Carts: carts, Stock: coord, Assembler: asm, Log: log}).Register(router)
	(&httpx.OrdersHandler{Assembler: asm, Orders: repo, Log: log}).Register(router)
	(&httpx.ProductsHandler{Catalog: cat, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", zap.String("signal", s.String()))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// no handler can publish anymore: flush and close writers
	pCreated.Close()
	pComp.Close()
	pCreated.WaitClosed()
	pComp.WaitClosed()
}
