package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"alloggiati/internal/audit"
	auditkafka "alloggiati/internal/audit/kafka"
	auditmemory "alloggiati/internal/audit/store/memory"
	auditpostgres "alloggiati/internal/audit/store/postgres"
	httpapi "alloggiati/internal/http"
	"alloggiati/internal/platform/config"
	"alloggiati/internal/platform/httpserver"
	"alloggiati/internal/platform/logger"
	platformmetrics "alloggiati/internal/platform/metrics"
	"alloggiati/internal/platform/redis"
	"alloggiati/internal/portal/handler"
	portalmetrics "alloggiati/internal/portal/metrics"
	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/service"
	"alloggiati/internal/portal/submission"
	"alloggiati/internal/portal/tables"
	tablestore "alloggiati/internal/portal/tables/store"
	"alloggiati/internal/portal/token"
	"alloggiati/internal/portal/transport"
	"alloggiati/pkg/platform/circuit"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const auditQueueSize = 1024

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/portal.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	platformmetrics.New(version)
	pm := portalmetrics.New()

	breaker := circuit.New("portal",
		circuit.WithFailureThreshold(cfg.Circuit.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Circuit.SuccessThreshold),
		circuit.WithCooldown(cfg.Circuit.Cooldown),
	)
	tr := transport.New(
		transport.WithEndpoint(cfg.Portal.Endpoint),
		transport.WithTimeout(cfg.Portal.Timeout),
		transport.WithBreaker(breaker),
		transport.WithLogger(log),
		transport.WithMetrics(pm),
	)
	tokens := token.NewRegistry(token.NewPortalAuthenticator(tr),
		token.WithSafetyMargin(cfg.Portal.SafetyMargin),
		token.WithLogger(log),
		token.WithMetrics(pm),
	)

	checks := map[string]httpapi.HealthCheck{}
	var closers []func() error

	var cache tablestore.Cache = tablestore.NewInMemoryCache(cfg.Tables.CacheTTL)
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		cache = tablestore.NewRedisCache(redisClient.Client, cfg.Tables.CacheTTL)
		checks["redis"] = redisClient.Health
		closers = append(closers, redisClient.Close)
		log.Info("reference tables cached in redis")
	}
	tbl := tables.New(tokens, tr, cache, tables.WithLogger(log), tables.WithMetrics(pm))

	sinks, sinkChecks, sinkClosers, err := auditSinks(ctx, cfg, log)
	if err != nil {
		closeAll(log, closers)
		return err
	}
	for name, check := range sinkChecks {
		checks[name] = check
	}
	closers = append(closers, sinkClosers...)

	publisher := audit.NewPublisher(sinks, audit.WithLogger(log))
	worker := audit.NewWorker(publisher, auditQueueSize, log)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(workerCtx)
	}()

	retry := submission.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	retry.InitialInterval = cfg.Retry.InitialInterval
	retry.MaxInterval = cfg.Retry.MaxInterval
	retry.RetrySubmit = cfg.Retry.RetrySubmit

	svc := service.New(tokens, tr, tbl,
		service.WithLogger(log),
		service.WithWorkflowOptions(
			submission.WithRetryPolicy(retry),
			submission.WithMaxBatchSize(cfg.Portal.MaxBatchSize),
			submission.WithMetrics(pm),
			submission.WithAudit(worker),
		),
	)

	creds := models.Credentials{
		Username: cfg.Portal.Username,
		Password: cfg.Portal.Password,
		WSKey:    cfg.Portal.WSKey,
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,
		Routes:         []httpapi.Registrar{handler.New(svc, creds, log)},
		TokenStates: func() map[string]string {
			out := map[string]string{}
			for user, state := range svc.TokenStates() {
				out[user] = string(state)
			}
			return out
		},
		Checks:  checks,
		Metrics: platformmetrics.Handler(),
	})

	srv := httpserver.New(cfg.Server.Addr, otelhttp.NewHandler(router, "alloggiati-gateway"), cfg.Server.RequestTimeout+5*time.Second)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting alloggiati gateway", "addr", cfg.Server.Addr, "version", version, "endpoint", cfg.Portal.Endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stopWorker()
			wg.Wait()
			closeAll(log, closers)
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)

	// in-flight batches are done; flush their audit events before closing sinks
	stopWorker()
	wg.Wait()
	closeAll(log, closers)
	return err
}

// closeAll releases dependencies in reverse order of opening.
func closeAll(log *slog.Logger, closers []func() error) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.Warn("closing dependency failed", "error", err)
		}
	}
}

// auditSinks opens every configured audit destination. With none configured
// events are kept in memory.
func auditSinks(ctx context.Context, cfg config.Config, log *slog.Logger) ([]audit.Store, map[string]httpapi.HealthCheck, []func() error, error) {
	var (
		sinks   []audit.Store
		checks  = map[string]httpapi.HealthCheck{}
		closers []func() error
	)

	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		store := auditpostgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		sinks = append(sinks, store)
		checks["postgres"] = db.PingContext
		closers = append(closers, db.Close)
		log.Info("audit events stored in postgres")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := auditkafka.NewClient(cfg.Kafka.Brokers, kgo.ClientID("alloggiati-gateway"))
		if err != nil {
			closeAll(log, closers)
			return nil, nil, nil, err
		}
		if err := auditkafka.EnsureTopic(ctx, client, cfg.Kafka.Topic, 3, 1); err != nil {
			client.Close()
			closeAll(log, closers)
			return nil, nil, nil, err
		}
		sinks = append(sinks, auditkafka.NewSink(client, cfg.Kafka.Topic))
		checks["kafka"] = client.Ping
		closers = append(closers, func() error {
			client.Close()
			return nil
		})
		log.Info("audit events published to kafka", "topic", cfg.Kafka.Topic)
	}

	if len(sinks) == 0 {
		sinks = append(sinks, auditmemory.NewInMemoryStore())
		log.Warn("no durable audit sink configured, keeping events in memory")
	}
	return sinks, checks, closers, nil
}
