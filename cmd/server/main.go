package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/roomcast/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "roomcast: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	logger := server.NewLogger(cfg)

	app := server.NewApp(cfg, logger)
	app.Start()

	httpServer := server.CreateServer(app.Config.Port, app.Router())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", app.Config.Port).
			Str("env", app.Config.Env).
			Msg("starting roomcast server")
		errChan <- server.StartServer(httpServer, logger)
	}()

	select {
	case err := <-errChan:
		_ = app.Shutdown(nil, shutdownTimeout)
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")
	if err := app.Shutdown(httpServer, shutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}
