package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/booking"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/observability"
	"github.com/iliyamo/event-ticketing/internal/queue"
	"github.com/iliyamo/event-ticketing/internal/report"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/retry"
	"github.com/iliyamo/event-ticketing/internal/router"
)

const (
	serviceName    = "event-ticketing"
	serviceVersion = "0.1.0"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	consumer := pflag.Bool("consumer", false, "also run the notification consumer in this process")
	migrate := pflag.Bool("migrate", true, "create tables on startup")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger, *consumer, *migrate); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger, withConsumer, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DSNSummary(), err)
	}
	defer db.Close()
	if migrate {
		if err := database.Migrate(ctx, db, database.MySQLSchema); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Warn("redis unavailable: rate limiting and caches disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	pub, err := queue.NewPublisher(cfg.NotifyTransport, cfg.RabbitURL, cfg.KafkaBrokers, cfg.NotifyTopic, logger)
	if err != nil {
		return err
	}
	defer pub.Close()
	dispatcher := queue.NewDispatcher(pub, cfg.NotifyQueueSize, cfg.NotifyPublishTimeout, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	if withConsumer {
		go runConsumer(ctx, cfg, logger)
	}

	users := repository.NewUserRepo(db)
	events := repository.NewEventRepo(db)
	seats := repository.NewSeatRepo(db)
	tickets := repository.NewTicketRepo(db)

	policy := retry.Policy{MaxAttempts: cfg.PurchaseMaxAttempts, Backoff: retry.Linear(cfg.PurchaseBackoffStep)}
	inventory := booking.NewInventory(seats)
	ledger := booking.NewLedger(db, tickets, inventory, policy, logger)
	reports := report.NewService(events, tickets, seats, rdb, cfg.ReportCacheTTL, logger)
	coordinator := booking.NewCoordinator(db, events, users, inventory, ledger, logger,
		booking.WithPolicy(policy),
		booking.WithNotifier(dispatcher),
		booking.WithEvicter(reports),
		booking.WithFallbackEmail(cfg.NotifyFallbackEmail),
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, logger))
	router.RegisterEvents(e, handler.NewEventHandler(events, seats, inventory, reports, logger),
		cfg.JWTSecret, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterTickets(e, handler.NewTicketHandler(coordinator, ledger, logger),
		cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger))

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("db", cfg.DSNSummary()), zap.String("notify", cfg.NotifyTransport))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}

// runConsumer reads notifications back from the configured transport and
// writes them to the notification log until ctx ends.
func runConsumer(ctx context.Context, cfg config.Config, logger *zap.Logger) {
	writer := &queue.NotificationWriter{Dir: cfg.NotifyLogDir, FallbackEmail: cfg.NotifyFallbackEmail}
	var err error
	switch cfg.NotifyTransport {
	case "kafka":
		c := &queue.KafkaConsumer{Brokers: cfg.KafkaBrokers, Topic: cfg.NotifyTopic, GroupID: queue.DefaultGroupID, Handler: writer, Logger: logger}
		err = c.Run(ctx)
	case "rabbitmq", "amqp":
		c := &queue.RabbitConsumer{URL: cfg.RabbitURL, Queue: cfg.NotifyTopic, Handler: writer, Logger: logger}
		err = c.Run(ctx)
	default:
		logger.Info("notification consumer not started", zap.String("transport", cfg.NotifyTransport))
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notification consumer stopped", zap.Error(err))
	}
}
