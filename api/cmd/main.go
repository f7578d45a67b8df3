// Command api serves the user-service HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/bootstrap"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/config"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
	Addr() string
}

type realServer struct{ *http.Server }

func (r realServer) Addr() string { return r.Server.Addr }

type serverBuilder func() (httpServer, func(), error)

// Run serves until a stop signal arrives or the listener fails, then drains
// for at most grace. It returns the process exit code.
func Run(build serverBuilder, sigCh <-chan os.Signal, lg zerolog.Logger, grace time.Duration) int {
	srv, cleanup, err := build()
	if err != nil {
		lg.Error().Err(err).Msg("user-service bootstrap failed")
		return 1
	}
	defer cleanup()

	select {
	case sig := <-sigCh:
		lg.Info().Str("signal", sig.String()).Dur("grace", grace).Msg("user-service draining")
	case err := <-serve(srv, lg):
		lg.Error().Err(err).Str("addr", srv.Addr()).Msg("user-service listener failed")
		return 1
	}

	drain(srv, grace, lg)
	return 0
}

// serve starts the listener; the channel only ever carries a real failure.
func serve(srv httpServer, lg zerolog.Logger) <-chan error {
	failed := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", srv.Addr()).Msg("user-service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()
	return failed
}

func drain(srv httpServer, grace time.Duration, lg zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lg.Warn().Err(err).Msg("drain incomplete; dropping open connections")
		_ = srv.Close()
		return
	}
	lg.Info().Msg("user-service stopped")
}

func buildFromBootstrap() (httpServer, func(), error) {
	srv, cleanup, err := bootstrap.NewServer()
	if err != nil {
		return nil, nil, err
	}
	return realServer{srv}, cleanup, nil
}

func main() {
	logger.Init()

	grace, err := config.ShutdownWait()
	if err != nil {
		logger.Logger.Error().Err(err).Msg("invalid shutdown config")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	os.Exit(Run(buildFromBootstrap, sigCh, logger.Logger, grace))
}
