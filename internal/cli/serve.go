package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ellenzeng3/lda-filing-bot/internal/app"
	httptransport "github.com/ellenzeng3/lda-filing-bot/internal/transport/http"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, Slack events endpoint and scheduled sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, log, closer, err := opts.load("ldabot")
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, waitSlack := a.Handler()
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTP.Address), handler)

	sched, err := a.Scheduler()
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
		log.WithField("schedule", cfg.Schedule.Spec).Info("scheduled sync enabled")
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("ldabot listening on %s", cfg.HTTP.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-shutdownCh:
		log.Info("shutdown requested")
	case err := <-serverErr:
		runErr = fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn("scheduled sync still running at shutdown")
		}
	}
	waitSlack()
	return runErr
}
