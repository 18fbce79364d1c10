package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelreel/sonichash/internal/api"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/logging"
	"github.com/kelreel/sonichash/internal/version"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 5 * time.Second
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	var (
		listen       string
		trustHeaders bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := s.settings.ListenAddr
			if strings.TrimSpace(listen) != "" {
				addr = strings.TrimSpace(listen)
			}
			var auth api.Authenticator = api.Anonymous{}
			if trustHeaders {
				auth = api.TrustedHeaders{}
			}
			log := logging.Component(s.logger, "server")

			handler := api.NewHandler(s.svc.personas, s.svc.orchestrator(), s.svc.portfolio, s.svc.prices, auth, s.logger)
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go s.svc.cache.RunJanitor(ctx, janitorInterval)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Str("build", version.Long()).Msg("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					return
				}
				errCh <- nil
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return clierr.Wrap(clierr.CodeInternal, "shutdown http server", err)
				}
				return nil
			case err := <-errCh:
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "serve http", err)
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&trustHeaders, "trust-identity-headers", false, "Read caller identity from X-User-Id and X-Wallet-Address headers")
	return cmd
}
