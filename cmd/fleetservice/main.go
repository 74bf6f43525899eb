package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/AkkiD7/fleetlink-task/internal/fleet/domain"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/handler"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/ledger"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/registry"
	fleetservice "github.com/AkkiD7/fleetlink-task/internal/fleet/service"
	"github.com/AkkiD7/fleetlink-task/internal/intake"
	outboxworker "github.com/AkkiD7/fleetlink-task/internal/outbox"
	"github.com/AkkiD7/fleetlink-task/pkg/events"
	"github.com/AkkiD7/fleetlink-task/pkg/observability"
)

type appConfig struct {
	HTTPAddr     string
	GRPCAddr     string
	PostgresDSN  string
	RedisAddr    string
	NATSURL      string
	EventSubject string
	HoldTTL      time.Duration
	HoldAttempts int
	HoldBackoff  time.Duration
	OutboxPoll   time.Duration
	OutboxBatch  int
	OutboxRetry  int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("fleet-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "fleet-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("fleetservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var holds domain.HoldStore
	if redisClient != nil {
		holds = ledger.NewRedisHoldStore(redisClient, "")
	}

	fleetRegistry := registry.NewMemoryRegistry()
	bookingLedger := ledger.NewMemoryLedger()
	publisher := events.NewPublisher(natsConn, cfg.EventSubject)

	svc := fleetservice.New(fleetRegistry, bookingLedger, publisher, domain.SystemClock{}, holds, fleetservice.HoldConfig{
		TTL:         cfg.HoldTTL,
		MaxAttempts: cfg.HoldAttempts,
		Backoff:     cfg.HoldBackoff,
	})
	fleetHTTP := handler.NewHTTP(svc)

	r := chi.NewRouter()
	r.Mount("/", fleetHTTP.Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if db != nil && natsConn != nil {
		worker := outboxworker.NewWorker(db, natsConn, logger.Named("outbox"), outboxworker.WorkerConfig{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("outbox worker disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	go runIntake(cfg.GRPCAddr, svc, logger)

	go func() {
		logger.Info("fleet service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runIntake(addr string, svc *fleetservice.Service, logger *zap.Logger) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}
	srv := grpc.NewServer()
	intake.RegisterIntakeServer(srv, intake.NewServer(svc, logger.Named("intake")))
	logger.Info("fleet intake grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getenv("GRPC_ADDR", ":9090"),
		PostgresDSN:  firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		NATSURL:      os.Getenv("NATS_URL"),
		EventSubject: getenv("EVENT_SUBJECT", "fleet.bookings"),
		HoldTTL:      time.Duration(parseIntEnv("HOLD_TTL_SEC", 5)) * time.Second,
		HoldAttempts: parseIntEnv("HOLD_MAX_ATTEMPTS", 3),
		HoldBackoff:  time.Duration(parseIntEnv("HOLD_BACKOFF_MS", 50)) * time.Millisecond,
		OutboxPoll:   time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch:  parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry:  parseIntEnv("OUTBOX_RETRY_MAX", 3),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
