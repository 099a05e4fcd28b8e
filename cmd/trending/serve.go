package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/d60-Lab/trending/internal/api/handler"
	"github.com/d60-Lab/trending/internal/api/router"
	"github.com/d60-Lab/trending/internal/service"
	"github.com/d60-Lab/trending/pkg/logger"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the periodic sweep",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "create the trending table on start (SQL store only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	if autoMigrate {
		if err := a.Migrate(); err != nil {
			return err
		}
	}

	if a.Config.Scheduler.Enabled {
		sched, err := a.Scheduler()
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				logger.Warn("scheduler did not stop in time", zap.Error(err))
			}
		}()
		logger.Info("scheduler started", zap.String("spec", a.Config.Scheduler.Spec))
	}

	h := handler.NewHandler(a.Trending, a.Config.Trending.Retention)
	if workers := a.Config.Trending.DeleteWorkers; workers > 0 {
		q := service.NewDeletionQueue(a.Trending, a.Config.Trending.DeleteQueueSize)
		stopDeletions := q.Start(workers)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := stopDeletions(drainCtx); err != nil {
				logger.Warn("deletion queue did not drain", zap.Error(err))
			}
		}()
		h.WithDeletionQueue(q)
	}
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           router.Setup(a.Config, h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
