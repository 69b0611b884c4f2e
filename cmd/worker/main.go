// Package main provides the entry point for the delivery worker. It drains
// the email queue and runs the invitation expiry sweep.
package main

import (
	"context"
	"errors"
	"os"

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
	log := logger.FromEnv().WithComponent("cmd-worker")
	if envErr != nil {
		log.Error("failed to read .env", "error", envErr)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Error("the worker needs a shared store; with STORE_DRIVER=memory the API runs delivery in-process")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg, log.Logger)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	sender, err := mailer.New(mailer.Config{
		Driver:       cfg.Mail.Driver,
		From:         cfg.Mail.From,
		ResendAPIKey: cfg.Mail.ResendAPIKey,
		SMTPHost:     cfg.Mail.SMTPHost,
		SMTPPort:     cfg.Mail.SMTPPort,
		SMTPUsername: cfg.Mail.SMTPUsername,
		SMTPPassword: cfg.Mail.SMTPPassword,
	}, log.Logger)
	if err != nil {
		log.Error("failed to initialize mailer", "error", err)
		os.Exit(1)
	}

	worker := delivery.NewWorker(&delivery.WorkerConfig{
		Concurrency:  cfg.Delivery.Concurrency,
		PollInterval: cfg.Delivery.PollInterval,
	}, a.Queue, sender, log.Logger)
	sweep := sweeper.New(a.Engine, cfg.Delivery.SweepSpec, log.Logger)

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", a))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return sweep.Run(gctx) })

	done := make(chan struct{})
	go func() {
		err := g.Wait()
		close(done)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err)
			coordinator.Shutdown()
		}
	}()
	coordinator.Register(shutdown.NewRunnerComponent("delivery", cancel, done))

	log.Info("starting delivery worker",
		"concurrency", cfg.Delivery.Concurrency,
		"mail_driver", cfg.Mail.Driver,
		"sweep", cfg.Delivery.SweepSpec,
	)

	go coordinator.WaitForSignal()
	coordinator.Wait()
	log.Info("delivery worker shutdown complete")
	os.Exit(coordinator.ExitCode())
}
