package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/obay/internal/gateway"
	"github.com/mesh-intelligence/obay/internal/httpapi"
	"github.com/mesh-intelligence/obay/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		Long: "Attach the configured store, provision the record tables, then serve\n" +
			"CRUD routes and change feeds until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return env.serve(ctx, nil)
		},
	}
	cmd.Flags().String("listen", "", "listen address (default :8080)")
	return cmd
}

// serve runs the API until ctx is done. When ready is non-nil it receives
// the bound address once the listener is open.
func (e *environment) serve(ctx context.Context, ready chan<- string) error {
	st, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Detach(); err != nil {
			e.logger.Error("detach store", "error", err)
		}
	}()

	m := metrics.New()
	gws, err := e.gateways(st, gateway.WithMetrics(m))
	if err != nil {
		return err
	}
	handler := httpapi.New(gws,
		httpapi.WithStore(st),
		httpapi.WithMetrics(m),
		httpapi.WithLogger(e.logger),
		httpapi.WithPingInterval(e.settings.PingInterval),
	)

	ln, err := net.Listen("tcp", e.settings.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		e.logger.Info("obay listening", "addr", ln.Addr().String(), "backend", e.settings.Backend)
		if ready != nil {
			ready <- ln.Addr().String()
		}
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		e.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
