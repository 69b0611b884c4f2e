// Package main provides the entry point for the API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/narvanalabs/locum/internal/api"
	"github.com/narvanalabs/locum/internal/app"
	"github.com/narvanalabs/locum/internal/delivery"
	"github.com/narvanalabs/locum/internal/mailer"
	"github.com/narvanalabs/locum/internal/shutdown"
	"github.com/narvanalabs/locum/internal/sweeper"
	"github.com/narvanalabs/locum/pkg/config"
	"github.com/narvanalabs/locum/pkg/logger"
	"golang.org/x/sync/errgroup"
)

func main() {
	envErr := config.LoadDotEnv()
	log := logger.FromEnv().WithComponent("cmd-api")
	if envErr != nil {
		log.Error("failed to read .env", "error", envErr)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, log.Logger)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", a))

	// The in-memory queue is only visible to this process, so the API also
	// drains it and runs the expiry sweep.
	if a.InProcessQueue() {
		sender, err := mailer.New(mailerConfig(cfg), log.Logger)
		if err != nil {
			log.Error("failed to initialize mailer", "error", err)
			os.Exit(1)
		}
		runCtx, cancel := context.WithCancel(ctx)
		worker := delivery.NewWorker(&delivery.WorkerConfig{
			Concurrency:  cfg.Delivery.Concurrency,
			PollInterval: cfg.Delivery.PollInterval,
		}, a.Queue, sender, log.Logger)
		sweep := sweeper.New(a.Engine, cfg.Delivery.SweepSpec, log.Logger)

		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error { return worker.Run(gctx) })
		g.Go(func() error { return sweep.Run(gctx) })

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("background task stopped", "error", err)
			}
		}()
		coordinator.Register(shutdown.NewRunnerComponent("background", cancel, done))
	}

	server := api.NewServer(api.Deps{
		Config:      cfg,
		Store:       a.Store,
		Engine:      a.Engine,
		Inbox:       a.Inbox,
		Broker:      a.Broker,
		Auth:        a.Auth,
		Idempotency: a.Idempotency(),
		Redis:       a.Redis,
		Logger:      log.Logger,
	})
	httpServer := server.HTTPServer()
	coordinator.Register(shutdown.NewFuncComponent("streams", func(context.Context) error {
		server.CloseStreams()
		return nil
	}))
	coordinator.Register(shutdown.NewHTTPServerComponent("http", httpServer))

	go func() {
		log.Info("starting API server", "addr", httpServer.Addr, "store", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			coordinator.Shutdown()
		}
	}()

	go coordinator.WaitForSignal()
	coordinator.Wait()
	log.Info("server stopped")
	os.Exit(coordinator.ExitCode())
}

func mailerConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Driver:       cfg.Mail.Driver,
		From:         cfg.Mail.From,
		ResendAPIKey: cfg.Mail.ResendAPIKey,
		SMTPHost:     cfg.Mail.SMTPHost,
		SMTPPort:     cfg.Mail.SMTPPort,
		SMTPUsername: cfg.Mail.SMTPUsername,
		SMTPPassword: cfg.Mail.SMTPPassword,
	}
}
