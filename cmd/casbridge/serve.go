package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cas-bridge/internal/realtime"
	"cas-bridge/internal/repl"
	"cas-bridge/internal/session"
	"cas-bridge/internal/watcher"
)

const (
	shutdownTimeout = 10 * time.Second
	staleScratchAge = time.Hour
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve kernels over websocket and REST",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
	cmd.Flags().IntVarP(&a.cfg.Port, "port", "p", a.cfg.Port, "HTTP listen port")
	cmd.Flags().IntVar(&a.cfg.MaxSessions, "max-sessions", a.cfg.MaxSessions, "Maximum number of live kernels")
	cmd.Flags().StringVar(&a.cfg.StaticDir, "static-dir", a.cfg.StaticDir, "Directory of static files to serve at /")
	cmd.Flags().StringVar(&a.cfg.ScratchDir, "scratch-dir", a.cfg.ScratchDir, "Directory for scratch files")
	return cmd
}

func (a *app) serve() error {
	if err := os.MkdirAll(a.cfg.ScratchDir, 0o700); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	if n, err := repl.SweepScratch(a.cfg.ScratchDir, staleScratchAge); err != nil {
		a.log.Warn("sweep scratch dir", "error", err)
	} else if n > 0 {
		a.log.Info("removed stale scratch files", "count", n)
	}

	kernels := session.NewManager(a.registry, a.cfg.MaxSessions, repl.Options{
		ScratchDir: a.cfg.ScratchDir,
		Logger:     a.log,
	})
	rtServer := realtime.New(kernels, a.cfg.StaticDir, a.log)

	// Reload profiles on change. New kernels pick up the new table; running
	// ones keep the profile they started with.
	profileWatch := watcher.New(func(path string) {
		if err := a.registry.LoadFile(path); err != nil {
			a.log.Error("reload profiles", "path", path, "error", err)
			return
		}
		a.log.Info("profiles reloaded", "path", path)
		rtServer.OnDialectsReloaded(a.registry.List())
	}, a.log)
	if a.cfg.Profiles != "" {
		if err := profileWatch.Watch(a.cfg.Profiles); err != nil {
			a.log.Warn("profile reload disabled", "error", err)
		}
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Port),
		Handler: rtServer.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigCh
		a.log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		profileWatch.Shutdown()
		httpServer.Shutdown(ctx)
		kernels.Shutdown()
	}()

	a.log.Info("casbridge listening", "addr", fmt.Sprintf("http://localhost:%d", a.cfg.Port))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	<-stopped
	return nil
}
