package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.miragespace.co/esmodule"
	"go.miragespace.co/esmodule/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rewrite, reload and call endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := c.cfg.RuntimeConfig(c.logger)
			if err != nil {
				return err
			}

			rt, err := esmodule.NewRuntime(c.logger, rc)
			if err != nil {
				return err
			}
			defer rt.Stop(true)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if c.cfg.Entry != "" {
				if err := rt.LoadEntry(ctx, c.cfg.Entry, false); err != nil {
					return err
				}
			}

			s, err := server.New(server.Options{
				Logger:        c.logger,
				Runtime:       rt,
				Rewriter:      rc.Rewriter,
				LoaderSymbol:  rc.LoaderSymbol,
				ExportsSymbol: rc.ExportsSymbol,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              c.cfg.Listen,
				Handler:           s.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			c.logger.Info("ready", zap.String("addr", c.cfg.Listen))

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("listen", "", "address to listen on")
	cmd.Flags().String("entry", "", "entry module to load on start")

	return cmd
}
