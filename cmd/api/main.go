package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/go-grocery-store/internal/analytics"
	"github.com/safar/go-grocery-store/internal/api"
	"github.com/safar/go-grocery-store/internal/cache"
	"github.com/safar/go-grocery-store/internal/config"
	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/events"
	"github.com/safar/go-grocery-store/internal/inventory"
	"github.com/safar/go-grocery-store/internal/orders"
	"github.com/safar/go-grocery-store/internal/payment"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/safar/go-grocery-store/internal/users"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const appName = "grocery-store"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	app := &cli.App{
		Name:  appName,
		Usage: "grocery storefront API",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and the outbox publisher",
				Action: func(c *cli.Context) error {
					return withConfig(log, func(cfg *config.Config) error {
						return serve(c.Context, cfg, log)
					})
				},
			},
			{
				Name:      "migrate",
				Usage:     "apply or roll back schema migrations",
				ArgsUsage: "up|down",
				Action: func(c *cli.Context) error {
					direction := database.MigrateDirection(c.Args().First())
					if direction == "" {
						direction = database.MigrateUp
					}
					return withConfig(log, func(cfg *config.Config) error {
						return migrate(cfg, direction, log)
					})
				},
			},
			{
				Name:  "seed",
				Usage: "load a sample catalogue and an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "admin-email", Value: "admin@grocery.local"},
				},
				Action: func(c *cli.Context) error {
					return withConfig(log, func(cfg *config.Config) error {
						return seed(c.Context, cfg, c.String("admin-email"), log)
					})
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("command failed")
	}
}

func withConfig(log *logrus.Logger, fn func(*config.Config) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)

	return fn(cfg)
}

func migrate(cfg *config.Config, direction database.MigrateDirection, log logrus.FieldLogger) error {
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsDir, direction); err != nil {
		return err
	}
	log.WithField("direction", direction).Info("migrations applied")
	return nil
}

func serve(parent context.Context, cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("connected to database")

	responses, err := cache.New(ctx, &cfg.Cache)
	if err != nil {
		return fmt.Errorf("open response cache: %w", err)
	}
	defer responses.Close()

	policy, err := orders.PolicyByName(cfg.Order.StatusPolicy)
	if err != nil {
		return err
	}

	gateway := payment.NewGateway(&cfg.Payment, log)
	userService := users.NewService(db, log)

	router := api.NewRouter(api.Config{
		DB: db,
		Orders: orders.NewService(db, gateway, orders.Config{
			Currency:      cfg.Payment.Currency,
			PaymentSecret: cfg.Payment.KeySecret,
			Policy:        policy,
		}, log),
		Users:          userService,
		Analytics:      analytics.NewService(store.NewFacts(db)),
		Inventory:      inventory.NewService(db, log),
		Cache:          responses,
		CacheTTL:       cfg.Cache.TTL,
		RequestTimeout: cfg.Server.RequestTimeout,
		Log:            log,
	})

	pollerDone := make(chan struct{})
	if writer := events.NewKafkaWriter(&cfg.Kafka); writer != nil {
		poller := events.NewPoller(store.NewOutbox(db), writer, cfg.Kafka.PollInterval, log)
		go func() {
			defer close(pollerDone)
			poller.Run(ctx)
		}()
		log.WithField("topic", cfg.Kafka.Topic).Info("outbox publisher started")
	} else {
		close(pollerDone)
		log.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, appName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	stop()
	<-pollerDone

	log.Info("server exited")
	return nil
}
