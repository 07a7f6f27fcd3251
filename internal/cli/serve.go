package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"modelbridge/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the local HTTP facade and event stream",
		Example: "  modelbridge serve --addr 127.0.0.1:39280",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", e.fc.Addr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), e, ln)
		},
	}
	cmd.Flags().StringVar(&e.cfg.Addr, "addr", e.cfg.Addr, "HTTP listen address (defaults MODELBRIDGE_ADDR or 127.0.0.1:39280)")
	return cmd
}

// serve runs the facade on ln until ctx is done, then shuts down the server
// before closing the engine session.
func serve(ctx context.Context, e *env, ln net.Listener) error {
	s := e.open()
	defer s.close()

	httpapi.SetLogger(e.log)
	httpapi.SetDefaultLogLevel(httpLogLevel(e.log))
	httpapi.SetBaseContext(ctx)
	httpapi.SetEngineTimeout(e.fc.EngineWaitTimeout())
	httpapi.SetMaxBodyBytes(e.fc.MaxBodyBytes)
	if len(e.fc.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, e.fc.CORSOrigins, nil, nil)
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(s.svc, s.events),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.log.Info().Str("addr", ln.Addr().String()).Str("engine", e.fc.EngineURL).Msg("modelbridge listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			e.log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	err := g.Wait()
	e.log.Info().Msg("modelbridge stopped")
	return err
}
