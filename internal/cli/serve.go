package cli

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

	"github.com/me/ossim/internal/config"
	"github.com/me/ossim/internal/server"
	"github.com/me/ossim/pkg/model"
)

func newServeCmd() *cobra.Command {
	cfg := config.DefaultServerConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs over the monitor API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			env := config.DefaultServerConfig()
			env.ApplyEnv()
			if !flags.Changed("addr") {
				cfg.Addr = env.Addr
			}
			if !flags.Changed("db") {
				cfg.DBPath = env.DBPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg.DBPath)
			if err != nil {
				return model.NewResourceError("open run store", err)
			}
			defer st.Close()

			srv := server.New(cfg, st, logger)
			httpServer := &http.Server{
				Addr:    cfg.Addr,
				Handler: srv.Handler(),
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", cfg.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return model.NewResourceError("listen "+cfg.Addr, err)
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address (or "+config.EnvAddr+")")
	cmd.Flags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.ossim/ossim.db, or "+config.EnvDBPath+")")
	return cmd
}
