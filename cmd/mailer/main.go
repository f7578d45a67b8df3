// Command mailer drains the password-reset mail queue and delivers each job
// through SMTP, or the log sender in development.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/bootstrap"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/email"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
)

type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type builder func() (runner, time.Duration, error)

// worker closes the user store once the consumer has stopped.
type worker struct {
	runner
	closeStore func() error
}

func (w *worker) Stop(ctx context.Context) error {
	err := w.runner.Stop(ctx)
	if w.closeStore != nil {
		err = errors.Join(err, w.closeStore())
	}
	return err
}

var openStore = bootstrap.OpenStore

func Run(build builder, sigCh <-chan os.Signal, lg zerolog.Logger) int {
	app, stopWait, err := build()
	if err != nil {
		lg.Error().Err(err).Msg("bootstrap failed")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error().Err(err).Msg("mailer failed to start")
		return 1
	}
	lg.Info().Msg("mailer consuming")

	sig := <-sigCh
	lg.Info().Str("signal", sig.String()).Msg("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopWait)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		lg.Error().Err(err).Msg("graceful stop failed")
		return 1
	}
	return 0
}

func buildConsumer() (runner, time.Duration, error) {
	cfg, err := config.LoadMailer()
	if err != nil {
		return nil, 0, err
	}

	sender, err := newSender(cfg)
	if err != nil {
		return nil, 0, err
	}

	c := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:      cfg.RabbitURL,
		Exchange: cfg.Exchange,
		Queue:    cfg.Queue,
		BindKey:  cfg.BindKey,
		Prefetch: cfg.Prefetch,
		Tag:      cfg.ConsumerTag,
	}, sender, logger.Logger)

	if cfg.Store == nil {
		logger.Logger.Warn().Msg("no user store configured; dead-lettered reset mails keep their token until it expires")
		return c, cfg.ShutdownWait, nil
	}
	if cfg.Store.StoreDriver == config.StoreMemory {
		logger.Logger.Warn().Msg("memory store is private to this process; reset tokens are not cleared")
		return c, cfg.ShutdownWait, nil
	}

	store, err := openStore(context.Background(), cfg.Store)
	if err != nil {
		return nil, 0, fmt.Errorf("open user store: %w", err)
	}
	c.WithResetClearer(store.Users)
	return &worker{runner: c, closeStore: store.Close}, cfg.ShutdownWait, nil
}

func newSender(cfg *config.MailerConfig) (auth.Mailer, error) {
	switch cfg.EmailSender {
	case config.MailLog:
		return email.NewLogSender(logger.Logger), nil
	case config.MailSMTP:
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
			Insecure: cfg.SMTP.Insecure,
		}, logger.Logger), nil
	}
	return nil, fmt.Errorf("unknown EMAIL_SENDER %q", cfg.EmailSender)
}

func main() {
	logger.Init()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	os.Exit(Run(buildConsumer, sigCh, logger.Logger))
}
