package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kylefelipe/satalertas-server/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.pool == nil {
				a.log.Warn().Msg("no database configured; API routes will answer 503")
			}

			h := httpapi.NewHandler(a.log, a.pool, a.layers, httpapi.Options{
				Metrics:     a.metrics,
				CORSOrigins: a.cfg.CORSOrigins,
			})
			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           h.Router(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("satalertas listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					a.log.Error().Err(err).Msg("http server error")
					return err
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			a.log.Info().Msg("shutdown complete")
			return nil
		},
	}
}
