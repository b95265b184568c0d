package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/config"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/gateway"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/kafka/consumer"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/kafka/producer"
	kafkapublisher "github.com/Shahid199578/whatsapp-delivery-worker/internal/kafka/publisher"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/logger"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/metrics"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/ratelimit"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/store"
	"github.com/Shahid199578/whatsapp-delivery-worker/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "delivery-worker").Logger()

	if err := store.Migrate(cfg.Database); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	prod, err := producer.New(cfg.Kafka.Brokers, log.With().Str("component", "kafka-producer").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, log.With().Str("component", "kafka-consumer").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}

	dlqPublisher := kafkapublisher.NewDLQPublisher(prod, cfg.Kafka.DLQTopic, log.With().Str("component", "dlq-publisher").Logger())
	if dlqPublisher == nil {
		log.Fatal().Msg("failed to create dlq publisher")
	}

	gatewayClient, err := gateway.NewClient(cfg.Gateway, log.With().Str("component", "gateway").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise gateway client")
	}

	senderLimiter, err := buildSenderLimiter(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise sender rate limiter")
	}
	globalLimiter, err := ratelimit.NewFixedWindow(cfg.Worker.GlobalRatePerSecond, time.Second, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise global rate limiter")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metricsService := metrics.NewPrometheus(registry)

	engine, err := worker.NewEngine(worker.Config{
		MaxAttempts:         cfg.Worker.MaxAttempts,
		BaseBackoff:         cfg.Worker.BaseBackoff,
		MaxBackoff:          cfg.Worker.MaxBackoff,
		Concurrency:         cfg.Worker.Concurrency,
		JobMaxBytes:         cfg.Worker.JobMaxBytes,
		CostCentsPerMessage: cfg.Billing.CostCentsPerMessage,
	}, worker.Dependencies{
		Gateway:       gatewayClient,
		Messages:      store.NewMessageStore(db),
		PhoneNumbers:  store.NewPhoneNumberStore(db),
		Usage:         store.NewUsageStore(db),
		SenderLimiter: senderLimiter,
		GlobalLimiter: globalLimiter,
		DLQ:           dlqPublisher,
		Committer: worker.CommitFunc(func(ctx context.Context, record *worker.Record) error {
			return record.Commit(ctx)
		}),
		Metrics: metricsService,
		Logger:  log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	srv := opsServer(cfg.App.Port, cons, db, registry)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server terminated")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, cfg.Kafka.JobsTopic, worker.KafkaHandler(engine, cons)); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("jobs_topic", cfg.Kafka.JobsTopic).
		Int("concurrency", cfg.Worker.Concurrency).
		Int("global_rate_per_second", cfg.Worker.GlobalRatePerSecond).
		Msg("delivery worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}

	// Stop intake first, then let in-flight attempts finish before the
	// producer and database handles go away.
	if err := cons.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka consumer")
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown deadline reached with jobs still in flight")
	}
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down ops server")
	}
}

func buildSenderLimiter(cfg *config.Config, log zerolog.Logger) (ratelimit.Limiter, error) {
	if !cfg.Redis.Enabled {
		return ratelimit.NewFixedWindow(cfg.RateLimit.SenderLimit, cfg.RateLimit.SenderWindow, nil)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis-backed sender rate limiter")
	return ratelimit.NewRedisWindow(rdb, cfg.RateLimit.SenderLimit, cfg.RateLimit.SenderWindow, "sender")
}

func opsServer(port int, cons *consumer.Consumer, db interface{ PingContext(context.Context) error }, registry *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		if !cons.IsReady() {
			http.Error(w, "consumer not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func fail(stage string, err error) {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	l.Fatal().Err(err).Str("stage", stage).Msg("delivery worker init failed")
}
