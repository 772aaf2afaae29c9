package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weavegraph/core/internal/config"
	"github.com/weavegraph/core/internal/logger"
)

// StartDebugServer serves Prometheus metrics at /metrics and Go's pprof
// profiles under /debug/pprof/ on cfg.MetricsPort. Grounded on the
// teacher's common/telemetry.Telemetry.Start (pprof + metrics endpoints
// on one background HTTP server); adapted to a single mux/port since
// this engine doesn't split pprof and metrics across two addresses the
// way the teacher's Telemetry struct does, and to mount promhttp's
// handler instead of the teacher's unfinished "TODO: add Prometheus
// metrics endpoint" since internal/observability.Metrics already
// registers real collectors via promauto.
func StartDebugServer(ctx context.Context, cfg config.TelemetryConfig, log *logger.Logger) {
	if !cfg.EnableMetrics {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	addr := fmt.Sprintf(":%d", cfg.MetricsPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info("debug server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("debug server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
