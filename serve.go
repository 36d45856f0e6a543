package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jupark12/docshift/config"
	"github.com/jupark12/docshift/logging"
	"github.com/jupark12/docshift/models"
	"github.com/jupark12/docshift/pipeline"
	"github.com/jupark12/docshift/server"
	"github.com/jupark12/docshift/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion HTTP service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	enhancer, closeEnhancer, err := openEnhancer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEnhancer()

	updates := models.NewWebSocketManager(logger)
	updates.Start()
	defer updates.Stop()

	p := pipeline.New(pipeline.Options{
		Store:       docs,
		Enhancer:    enhancer,
		StepTimeout: cfg.StepTimeout,
		Notifier:    updates.BroadcastDocumentUpdate,
		Logger:      logger,
	})

	pool := worker.NewPool(p, cfg.Workers, cfg.QueueSize, logger)
	pool.Start()

	srv := server.NewServer(server.Options{
		Addr:           cfg.Addr(),
		Store:          docs,
		Pipeline:       p,
		Dispatcher:     pool,
		Updates:        updates,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if perr := pool.Stop(shutdownCtx); perr != nil {
			err = errors.Join(err, fmt.Errorf("worker pool: %w", perr))
		}
		return err
	})

	logger.Info().Int("workers", cfg.Workers).Str("addr", cfg.Addr()).Msg("docshift started")
	return g.Wait()
}
