// Package observability provides prometheus metrics for the platform client
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//nolint:gochecknoglobals // Singleton pattern for metrics server
var (
	metricsServerInstance *http.Server
	metricsMu             sync.Mutex
)

// StartMetricsServer starts a Prometheus metrics server on addr unless one is already running.
// An empty addr disables the server.
func StartMetricsServer(log logrus.FieldLogger, addr string) {
	if addr == "" {
		return
	}

	metricsMu.Lock()
	defer metricsMu.Unlock()

	if metricsServerInstance != nil {
		return
	}

	sm := http.NewServeMux()
	sm.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 15 * time.Second,
		Handler:           sm,
	}
	metricsServerInstance = srv

	go func() {
		log.WithField("addr", addr).Info("Starting metrics server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
}

// StopMetricsServer shuts the metrics server down if it is running.
func StopMetricsServer(ctx context.Context) error {
	metricsMu.Lock()
	srv := metricsServerInstance
	metricsServerInstance = nil
	metricsMu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}
