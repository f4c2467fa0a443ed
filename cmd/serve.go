package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/clubhouse/transport/httpapi"
)

const shutdownGrace = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept chat messages over HTTP and dispatch them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := wireApp(ctx, cfg)
			if err != nil {
				return err
			}
			opts, err := httpOptions(cfg)
			if err != nil {
				_ = a.Close(context.Background())
				return err
			}
			if err := a.sessions.Start(); err != nil {
				_ = a.Close(context.Background())
				return err
			}

			server := httpapi.New(cfg.HTTP, a.dispatcher, opts...)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.ListenAndServe(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
				defer cancel()
				log.Info().Msg("draining_sessions")
				return a.Close(closeCtx)
			})

			err = g.Wait()
			log.Info().Err(err).Msg("serve_stopped")
			return err
		},
	}
}
