package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatmod/chatmod/internal/rest"
	"github.com/chatmod/chatmod/internal/setup"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// ServerLogDir specifies where server log files are stored.
const ServerLogDir = "logs/server_logs"

// Server timeouts.
const (
	ReadTimeout     = 5 * time.Second
	WriteTimeout    = 60 * time.Second
	ShutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cmd := &cli.Command{
		Name:  "server",
		Usage: "Start the moderation assistant server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Listen address, overrides the configured value",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServer(ctx, c.String("listen"))
		},
	}

	return cmd.Run(context.Background(), os.Args)
}

func runServer(ctx context.Context, listenOverride string) error {
	app, err := setup.InitializeApp(ctx, ServerLogDir)
	if err != nil {
		return err
	}
	defer app.Cleanup(context.Background())

	handler := rest.NewServer(&rest.Deps{
		Policy:       app.Policy,
		Corpus:       app.Corpus,
		Ledger:       app.Ledger,
		Promoter:     app.Promoter,
		Reconciler:   app.Reconciler,
		Pipeline:     app.Pipeline,
		Orchestrator: app.Orchestrator,
	}, app.Logger)

	addr := app.Config.Server.ListenAddr
	if listenOverride != "" {
		addr = listenOverride
	}

	writeTimeout := WriteTimeout
	if app.Config.Server.RequestTimeout > 0 {
		writeTimeout = time.Duration(app.Config.Server.RequestTimeout) * time.Millisecond
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		app.Logger.Info("Server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	return nil
}
