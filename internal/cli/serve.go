package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/radio-control/rigd/internal/adapter"
	"github.com/radio-control/rigd/internal/api"
	"github.com/radio-control/rigd/internal/auth"
	"github.com/radio-control/rigd/internal/buildinfo"
	"github.com/radio-control/rigd/internal/config"
)

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	c.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return c
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}()

	verifier, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	server := api.NewServer(a.orchestrator, a.hub, auth.NewMiddleware(verifier), cfg.Server,
		api.WithLogger(a.logger.With("component", "api").Logger),
		api.WithVersion(buildinfo.Version),
	)

	a.logger.Info("starting rigd",
		"version", buildinfo.Version,
		"model", cfg.Device.Model,
		"device", cfg.Device.Path,
		"addr", cfg.Server.Addr,
		"auth", cfg.Auth.Mode,
	)

	if cfg.Beacon.AutoStart {
		if err := a.orchestrator.StartBeacon(ctx); err != nil {
			a.logger.Error("beacon autostart failed", "error", err)
		}
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(cfg.Server.Addr) }()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("http server failed", "error", err)
		}
		stopBeacon(a)
		return err
	}

	stopBeacon(a)
	// Stop the hub first so open telemetry streams return and Shutdown can finish.
	a.hub.Stop()
	if err := server.Stop(context.Background()); err != nil {
		return err
	}
	a.logger.Info("rigd stopped")
	return nil
}

func stopBeacon(a *app) {
	err := a.orchestrator.StopBeacon(context.Background())
	if err != nil && !errors.Is(err, adapter.ErrNotRunning) {
		a.logger.Warn("beacon stop", "error", err)
	}
}
