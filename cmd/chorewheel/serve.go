package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorewheel/internal/server"
)

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background cycle sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve()
		},
	}
	cmd.Flags().String("port", "8080", "HTTP listen port")
	cmd.Flags().Duration("sweep-interval", 5*time.Minute, "how often auto-rotating homes are checked")
	a.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	a.v.BindPFlag("sweep_interval", cmd.Flags().Lookup("sweep-interval"))
	return cmd
}

func (a *app) serve() error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := a.syncCatalog(db); err != nil {
		return err
	}

	srv := server.New(db, a.cfg.SweepInterval, a.logger)

	httpServer := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	srv.Sweeper().Start(bgCtx)

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	go func() {
		a.logger.Info("chorewheel starting", "addr", httpServer.Addr, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info("shutting down")
	srv.Sweeper().Stop()
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
