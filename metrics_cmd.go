package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// metricsShutdownTimeout is how long the metrics server drains on exit.
const metricsShutdownTimeout = 5 * time.Second

func newServeMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose client metrics over HTTP, optionally polling a path",
		Long: "Serves Prometheus metrics at /metrics. With --poll, the path is fetched\n" +
			"through the client every --interval so refresh and teardown activity shows up.",
		Args: cobra.NoArgs,
		RunE: runServeMetrics,
	}

	cmd.Flags().String("listen", "", "listen address (overrides [metrics] listen)")
	cmd.Flags().String("poll", "", "path to fetch periodically")
	cmd.Flags().Duration("interval", 30*time.Second, "poll interval")

	return cmd
}

func runServeMetrics(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("listen")
	if addr == "" {
		addr = resolvedCfg.Metrics.Listen
	}

	if addr == "" {
		return errors.New("no listen address: set [metrics] listen or --listen")
	}

	poll, _ := cmd.Flags().GetString("poll")
	interval, _ := cmd.Flags().GetDuration("interval")

	if poll != "" && interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}

	return withStack(cmd, routeOf(poll), func(ctx context.Context, s *stack) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}

		var wg sync.WaitGroup
		defer wg.Wait()

		s.watch(ctx, &wg)

		if poll != "" {
			wg.Add(1)

			go func() {
				defer wg.Done()
				pollLoop(ctx, s, poll, interval)
			}()
		}

		statusf("Serving metrics on http://%s/metrics\n", ln.Addr())

		return serveMetrics(ctx, s, ln)
	})
}

// serveMetrics serves the stack's registry on ln until ctx is done.
func serveMetrics(ctx context.Context, s *stack, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// pollLoop fetches path every interval until ctx is done. Failures are
// logged; a terminal session failure stops the loop.
func pollLoop(ctx context.Context, s *stack, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		resp, err := s.client.Do(ctx, http.MethodGet, path, nil)

		switch {
		case err == nil:
			s.logger.Debug("poll succeeded", slog.String("path", path), slog.Int("status", resp.StatusCode))
		case isSessionTerminal(err):
			s.logger.Error("poll stopped, session ended", slog.String("error", err.Error()))
			return
		default:
			s.logger.Warn("poll failed", slog.String("path", path), slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
