package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/kinspect/internal/bridge"
	"github.com/roach88/kinspect/internal/engine"
	"github.com/roach88/kinspect/internal/store"
)

// services are the long-running parts around a supervisor: the HTTP bridge
// and the Prometheus endpoint. Empty addresses disable them.
type services struct {
	store         *store.Store
	listen        string
	metricsListen string
	logger        *slog.Logger
}

// run starts the enabled services and then calls work with the engine
// options that connect ingestion to them. It returns when work returns
// and no service is enabled, or when ctx ends or any part fails.
func (s services) run(ctx context.Context, work func(ctx context.Context, eopts []engine.Option) error) error {
	// Bind both addresses before starting anything so a bad address fails
	// the command up front.
	var bridgeLn, metricsLn net.Listener
	var err error
	if s.listen != "" {
		if bridgeLn, err = net.Listen("tcp", s.listen); err != nil {
			return fmt.Errorf("bridge listen %s: %w", s.listen, err)
		}
	}
	if s.metricsListen != "" {
		if metricsLn, err = net.Listen("tcp", s.metricsListen); err != nil {
			if bridgeLn != nil {
				bridgeLn.Close()
			}
			return fmt.Errorf("metrics listen %s: %w", s.metricsListen, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	var eopts []engine.Option
	if bridgeLn != nil {
		hub := bridge.NewHub(s.logger)
		eopts = append(eopts, engine.WithNotifier(hub))
		srv := bridge.NewServer(s.store, hub, s.logger)
		g.Go(func() error {
			return srv.ServeListener(ctx, bridgeLn)
		})
	}
	if metricsLn != nil {
		g.Go(func() error {
			return serveMetrics(ctx, metricsLn, s.logger)
		})
	}

	g.Go(func() error {
		return work(ctx, eopts)
	})
	return g.Wait()
}

// serveMetrics exposes the default Prometheus registry on /metrics.
func serveMetrics(ctx context.Context, ln net.Listener, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("metrics listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// isShutdown reports whether err only says that ctx was cancelled.
func isShutdown(ctx context.Context, err error) bool {
	return err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err()))
}
