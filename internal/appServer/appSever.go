package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/ems-booking/config"
	"github.com/ds124wfegd/ems-booking/internal/database"
	"github.com/ds124wfegd/ems-booking/internal/database/memory"
	repository "github.com/ds124wfegd/ems-booking/internal/database/postgres"
	cache "github.com/ds124wfegd/ems-booking/internal/database/redis"
	"github.com/ds124wfegd/ems-booking/internal/service"
	"github.com/ds124wfegd/ems-booking/internal/transport"
	"github.com/ds124wfegd/ems-booking/internal/worker"

	"github.com/ds124wfegd/ems-booking/pkg/gateway"
	"github.com/ds124wfegd/ems-booking/pkg/kafka"
	"github.com/ds124wfegd/ems-booking/pkg/postgres"
	"github.com/ds124wfegd/ems-booking/pkg/rabbitMQ"
	"github.com/ds124wfegd/ems-booking/pkg/redis"
	"github.com/ds124wfegd/ems-booking/pkg/scheduler"
	"github.com/ds124wfegd/ems-booking/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func openStorage(ctx context.Context, cfg *config.Config) (database.UnitOfWork, *sql.DB) {
	if cfg.Storage.Driver == "memory" {
		logrus.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	return repository.NewUnitOfWork(db, cfg.Database.TxMaxAttempts, cfg.Database.TxBaseDelay), db
}

// buildDependencies connects the optional collaborators. Each one that is
// disabled or unreachable is left nil and the services fall back to no-ops.
func buildDependencies(ctx context.Context, cfg *config.Config, uow database.UnitOfWork) (service.Dependencies, []transport.HealthCheck, func()) {
	deps := service.Dependencies{UoW: uow}
	var closers []func()
	var checks []transport.HealthCheck

	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logrus.Errorf("Failed to connect to Redis: %v. Continuing without availability cache...", err)
		} else {
			deps.Cache = cache.NewAvailabilityCache(client, cfg.Redis.AvailabilityTTL)
			closers = append(closers, func() { client.Close() })
			checks = append(checks, transport.HealthCheck{
				Name:  "redis",
				Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			})
			logrus.Info("Availability cache initialized")
		}
	}

	if cfg.RabbitMQ.Enabled {
		mq, err := rabbitMQ.NewRabbitMQ(rabbitMQ.RabbitMQConfig{
			URL:       cfg.RabbitMQ.URL,
			QueueName: cfg.RabbitMQ.QueueName,
		})
		if err != nil {
			logrus.Errorf("Failed to connect to RabbitMQ: %v. Notifications disabled...", err)
		} else {
			deps.Notifier = service.NewQueueNotifier(mq)
			closers = append(closers, func() { mq.Close() })
			checks = append(checks, transport.HealthCheck{
				Name:  "rabbitmq",
				Check: func(context.Context) error { return mq.HealthCheck() },
			})
			logrus.Info("Notification queue initialized")
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		deps.Publisher = service.NewStreamPublisher(producer)
		closers = append(closers, func() { producer.Close() })
		logrus.Info("Booking event stream initialized")
	}

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		deps.Alerter = service.NewTelegramAlerter(telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
		logrus.Info("Telegram bot initialized")
	} else {
		logrus.Warn("Telegram bot token not provided, ops alerts disabled")
	}

	if cfg.Payment.GatewayURL != "" {
		deps.Gateway = gateway.NewClient(cfg.Payment.GatewayURL, cfg.Payment.ServerKey, cfg.Payment.GatewayTimeout)
	}

	return deps, checks, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func NewServer(cfg *config.Config) {
	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uow, db := openStorage(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	deps, checks, closeDeps := buildDependencies(ctx, cfg, uow)
	defer closeDeps()
	if db != nil {
		checks = append([]transport.HealthCheck{{Name: "postgres", Check: db.PingContext}}, checks...)
	}

	// Initialize services
	services := service.NewServices(deps, service.SettingsFromConfig(cfg))

	// Initialize and start scheduler
	cron := scheduler.NewScheduler()
	if cfg.Reaper.Enabled {
		reaper := worker.NewReaper(services.Booking, services.Waitlist, deps.Alerter, cfg.Reaper.BatchSize)
		if err := cron.AddJob(cfg.Reaper.Schedule, "expiration-reaper", reaper.Run); err != nil {
			logrus.Fatalf("Failed to schedule reaper: %v", err)
		}
	}
	cron.Start(ctx)
	logrus.Info("Expiration scheduler started")

	// Initialize handlers
	handlers := transport.Handlers{
		Event:    transport.NewEventHandler(services.Event),
		Booking:  transport.NewBookingHandler(services.Booking, services.Payment),
		Payment:  transport.NewPaymentHandler(services.Payment),
		Waitlist: transport.NewWaitlistHandler(services.Waitlist),
	}

	if cfg.IsProduction() || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.InitRoutes(handlers, transport.RouterConfig{
		JWTSecret:      cfg.JWT.Secret,
		RequestTimeout: cfg.Server.Timeout,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		HealthChecks:   checks,
	})

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
	cron.Stop()
}
