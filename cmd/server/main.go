package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	auditservice "taskguard/internal/audit/service"
	httpapi "taskguard/internal/http"
	"taskguard/internal/identity/store/revocation"
	"taskguard/internal/platform/config"
	"taskguard/internal/platform/httpserver"
	"taskguard/internal/platform/logger"
	"taskguard/internal/platform/postgres"
	"taskguard/internal/platform/redis"
	"taskguard/pkg/platform/audit/publisher"
	"taskguard/pkg/platform/audit/sink/kafka"
	strutil "taskguard/pkg/platform/strings"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv(ctx)
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// run wires the backends, serves until ctx is cancelled and then drains the
// server and the audit export pipeline.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st := memoryStores()
	health := map[string]httpapi.HealthCheck{}

	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Database.ApplySchema {
			if err := postgres.ApplySchema(ctx, db); err != nil {
				return err
			}
		}
		st = postgresStores(db)
		health["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		log.Warn("DATABASE_URL is empty; using in-memory stores")
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		st.revocations = revocation.NewRedisTRL(rdb.Client)
		health["redis"] = rdb.Health
		log.Info("using redis revocation list")
	}

	var exporter auditservice.Exporter
	var pub *publisher.Publisher
	var sink *kafka.Sink
	if cfg.Kafka.Brokers != "" {
		sink, err = kafka.New(kafka.Config{
			Brokers:     strutil.SplitList(cfg.Kafka.Brokers),
			TopicPrefix: cfg.Kafka.TopicPrefix,
			Partitions:  cfg.Kafka.Partitions,
			Replication: cfg.Kafka.Replication,
		})
		if err != nil {
			return err
		}
		if err := sink.EnsureTopics(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			log.Warn("audit topics not ensured", "error", err)
		}
		pub = publisher.NewPublisher(sink,
			publisher.WithAsyncBuffer(cfg.Kafka.BufferSize),
			publisher.WithLogger(log),
		)
		exporter = pub
		log.Info("exporting audit records to kafka", "prefix", cfg.Kafka.TopicPrefix)
	}

	a, err := buildApp(appDeps{
		cfg:      cfg,
		logger:   log,
		registry: prometheus.DefaultRegisterer,
		stores:   st,
		exporter: exporter,
		health:   health,
	})
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.Server, a.router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting taskguard", "addr", cfg.Server.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if pub != nil {
			pub.Close()
		}
		if sink != nil {
			if err := sink.Close(shutdownCtx); err != nil {
				log.Warn("kafka sink close failed", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}
