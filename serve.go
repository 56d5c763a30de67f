package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giygas/patient-records/combine"
	"github.com/giygas/patient-records/data"
	"github.com/giygas/patient-records/handlers"
	"github.com/giygas/patient-records/health"
	"github.com/giygas/patient-records/logging"
	"github.com/giygas/patient-records/records"
	"github.com/giygas/patient-records/scheduler"
	"github.com/giygas/patient-records/server"
)

const shutdownTimeout = 30 * time.Second

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Re-combine on a schedule and serve the dataset over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&a.flags.port, "port", "", "listen port (PORT)")
	cmd.Flags().StringVar(&a.flags.address, "address", "", "listen address (ADDRESS)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg

	store := data.NewDataContainer()
	store.SetServerStartTime(time.Now())

	runner := &combine.Runner{Options: combine.OptionsFromConfig(cfg)}
	sched := scheduler.NewScheduler(store, runner, cfg.RefreshInterval)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	checker := health.NewHealthChecker(store, cfg.RefreshInterval, sched.NextRun)
	handler := handlers.NewHTTPHandler(store, records.NewStore(cfg.DataDir), sched, checker, cfg.OutputName)
	srv := server.NewServer(cfg, handler)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server close error", "error", err)
		return err
	}
	return <-errCh
}
