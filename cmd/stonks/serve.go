package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/stonks/internal/api"
	"github.com/newthinker/stonks/internal/engine"
	"github.com/newthinker/stonks/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync scheduler and the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	var opts []engine.Option
	if cfg.Metrics.Enabled {
		opts = append(opts, engine.WithMetrics(metrics.NewRegistry()))
	}
	eng, err := engine.New(cfg, log, opts...)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		MetricsPath: cfg.Metrics.Path,
	}, eng, log.Named("api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Start(ctx) }()

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down stonks")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
