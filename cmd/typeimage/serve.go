package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/maruel/typeimage/internal/autobackup"
	"github.com/maruel/typeimage/internal/config"
	"github.com/maruel/typeimage/internal/server"
	"github.com/maruel/typeimage/internal/server/handlers"
)

func (c *cli) serveCmd() *cobra.Command {
	var backupFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the collection over HTTP",
		Long: "Serve the collection over HTTP.\n\n" +
			"With --backup-file on desktop, the file is granted for the lifetime of the\n" +
			"server and every change is written to it after the debounce delay.",
		Args: cobra.NoArgs,
		RunE: c.run(func(cmd *cobra.Command, _ []string, a *app) error {
			ctx := cmd.Context()
			if backupFile != "" {
				if a.cfg.ResolvedPlatform() != autobackup.PlatformDesktop {
					return errors.New("--backup-file is only used on desktop")
				}
				if err := autobackup.Setup(ctx, a.sched, a.setupOptions(backupFile, autobackup.NewPrompter())); err != nil {
					return fmt.Errorf("auto-backup setup failed: %w", err)
				}
			}
			version, _, _, _ := getBuildInfo()
			h := server.NewRouter(&handlers.Services{
				Meta:      a.meta,
				Blobs:     a.blobs,
				Scheduler: a.sched,
				Build:     a.buildBackup,
				Version:   version,
			})
			return serveHTTP(ctx, a.cfg.HTTP.Addr, h)
		}),
	}
	cmd.Flags().String("addr", "", "Listen address (default: "+config.DefaultHTTPAddr+")")
	cmd.Flags().StringVar(&backupFile, "backup-file", "", "Grant this file as the auto-backup destination (desktop)")
	bindFlagToViper(c.v, config.KeyHTTPAddr, cmd.Flags().Lookup("addr"))
	return cmd
}

// serveHTTP runs until ctx is canceled then shuts down gracefully.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr)
		serverErr <- srv.ListenAndServe()
	}()
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}
