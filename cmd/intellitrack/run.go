package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/intellitrack/internal/config"
	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/storage"
	"github.com/zeusync/intellitrack/internal/injector"
)

func newRunCmd(load func() (*config.Config, error)) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the world, serve the event feed and wait for a signal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Enabled = true
				cfg.Server.Address = address
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&address, "addr", "", "serve the event feed on this address (overrides config)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := app.Log.Named("run")

	if app.Store != nil {
		restore(ctx, app, logger)
	}
	if app.Feed != nil {
		if err := app.Feed.Start(ctx); err != nil {
			return err
		}
	}
	logger.Info("running", log.Int("entities", app.Space.Len()))

	<-ctx.Done()
	logger.Info("shutting down")

	if app.Feed != nil {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.Feed.Stop(sctx); err != nil {
			logger.Warn("stop feed", log.Error(err))
		}
	}
	if app.Store != nil {
		return save(context.Background(), app)
	}
	return nil
}

// restore reapplies the saved detector assignments of every scene.
func restore(ctx context.Context, app *injector.App, logger log.Log) {
	for _, sc := range app.World.SceneList() {
		g := sc.DetectorGroup()
		missing, err := storage.RestoreGroup(ctx, app.Store, g)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			logger.Warn("restore assignments", log.String("scene", sc.Path()), log.Error(err))
		case len(missing) > 0:
			logger.Warn("assigned detectors gone", log.String("scene", sc.Path()), log.Strings("missing", missing))
		}
	}
}

func save(ctx context.Context, app *injector.App) error {
	var errs []error
	for _, sc := range app.World.SceneList() {
		if err := storage.SaveGroup(ctx, app.Store, sc.DetectorGroup()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("save assignments: %w", err)
	}
	return nil
}
