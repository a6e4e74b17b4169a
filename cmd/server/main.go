package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"trustline/internal/events"
	"trustline/internal/events/kafka"
	eventsmetrics "trustline/internal/events/metrics"
	"trustline/internal/insurance"
	insurancehandler "trustline/internal/insurance/handler"
	insurancemetrics "trustline/internal/insurance/metrics"
	"trustline/internal/ledger"
	ledgerhandler "trustline/internal/ledger/handler"
	ledgermetrics "trustline/internal/ledger/metrics"
	"trustline/internal/liquidation"
	liquidationhandler "trustline/internal/liquidation/handler"
	liquidationmetrics "trustline/internal/liquidation/metrics"
	"trustline/internal/platform/config"
	"trustline/internal/platform/httpserver"
	"trustline/internal/platform/logger"
	"trustline/internal/platform/redis"
	"trustline/internal/scoring"
	scoringhandler "trustline/internal/scoring/handler"
	scoringmetrics "trustline/internal/scoring/metrics"
	transporthttp "trustline/internal/transport/http"
	"trustline/internal/vault"
	vaulthandler "trustline/internal/vault/handler"
	vaultmetrics "trustline/internal/vault/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db           *sql.DB
		ledgerStore  ledger.Store
		eventStore   events.Store
		auctionStore liquidation.Store
	)
	if cfg.Postgres.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		for _, schema := range []string{ledger.Schema, events.Schema, liquidation.Schema} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		ledgerStore = ledger.NewPostgres(db)
		eventStore = events.NewPostgres(db)
		auctionStore = liquidation.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		ledgerStore = ledger.NewMemoryStore()
		eventStore = events.NewMemoryStore()
		auctionStore = liquidation.NewMemoryStore()
		log.Warn("no postgres DSN configured, state is in-memory and volatile")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("scorecard cache enabled")
	}

	var scoreCache *scoring.Cache
	if redisClient != nil {
		scoreCache = scoring.NewCache(redisClient, 0)
	}

	// Event pipeline: non-blocking publisher, worker persists and fans out.
	eventMetrics := eventsmetrics.New()
	publisher := events.NewPublisher(
		events.WithLogger(log),
		events.WithMetrics(eventMetrics),
	)
	workerOpts := []events.WorkerOption{
		events.WithWorkerLogger(log),
		events.WithWorkerMetrics(eventMetrics),
	}
	if scoreCache != nil {
		// Loan transitions change the score inputs; drop the cached card so
		// the next read reprices instead of waiting out the TTL.
		workerOpts = append(workerOpts, events.WithSinks(scoring.NewCacheInvalidator(scoreCache)))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := kafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		workerOpts = append(workerOpts, events.WithSinks(kafkaSink))
		log.Info("kafka sink enabled", "topic", cfg.Kafka.Topic)
	}
	worker := events.NewWorker(eventStore, publisher.Inbox(), workerOpts...)

	// Domain services.
	ledgerSvc := ledger.New(ledgerStore,
		ledger.WithLogger(log),
		ledger.WithMetrics(ledgermetrics.New()),
	)

	engine, err := scoring.NewEngine()
	if err != nil {
		return fmt.Errorf("build scoring engine: %w", err)
	}
	scoringOpts := []scoring.Option{
		scoring.WithLogger(log),
		scoring.WithMetrics(scoringmetrics.New()),
	}
	if scoreCache != nil {
		scoringOpts = append(scoringOpts, scoring.WithCache(scoreCache))
	}
	scoringSvc := scoring.New(engine, ledgerSvc, scoringOpts...)

	fund := insurance.New(cfg.Risk.InsuranceCoverageBps, cfg.Risk.InsuranceAllocationBps,
		insurance.WithLogger(log),
		insurance.WithMetrics(insurancemetrics.New()),
	)

	oracle := newStaticOracle()
	custody := &loggingCustody{logger: log}

	vaultSvc := vault.New(ledgerSvc, scoringSvc, oracle, custody,
		vault.WithLogger(log),
		vault.WithMetrics(vaultmetrics.New()),
		vault.WithRevenueSink(fund),
		vault.WithEventSink(publisher),
		vault.WithThresholdFactorBps(cfg.Risk.LiquidationThresholdFactorBps),
	)

	liquidationSvc := liquidation.New(auctionStore, vaultSvc, scoringSvc, ledgerSvc, oracle,
		liquidation.WithLogger(log),
		liquidation.WithMetrics(liquidationmetrics.New()),
		liquidation.WithInsurance(fund),
		liquidation.WithEventSink(publisher),
		liquidation.WithTriggerThreshold(float64(cfg.Risk.LiquidationTriggerMilli)/1_000),
		liquidation.WithDiscountRamp(cfg.Risk.MaxDiscountBps, cfg.Risk.DiscountRamp),
	)

	health := func(ctx context.Context) error {
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	router := transporthttp.NewRouter(log, health,
		ledgerhandler.New(ledgerSvc, log),
		scoringhandler.New(scoringSvc, log),
		vaulthandler.New(vaultSvc, log),
		liquidationhandler.New(liquidationSvc, log),
		insurancehandler.New(fund, log),
	)
	server := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("event worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Stop accepting requests before closing the publisher so in-flight
		// handlers never emit into a closed channel.
		err := server.Shutdown(shutdownCtx)
		publisher.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
