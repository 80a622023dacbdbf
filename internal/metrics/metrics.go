package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magpie_search_requests_total",
			Help: "Total number of search API calls executed",
		},
		[]string{"vendor", "status"},
	)

	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magpie_page_fetches_total",
			Help: "Total number of page fetches executed",
		},
		[]string{"domain", "status", "blocked"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "magpie_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	RecordsExtractedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magpie_records_extracted_total",
			Help: "Total number of structured records extracted from pages",
		},
		[]string{"type"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "magpie_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)
)

// RecordSearch updates the search counters. Pass status "ok", "auth_error",
// "rate_limited" or "network_error".
func RecordSearch(vendor, status string) {
	SearchRequestsTotal.WithLabelValues(vendor, status).Inc()
}

// RecordFetch updates the fetch counters for one page fetch.
func RecordFetch(domain string, statusCode int, blocked bool, fetchErr string, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)
	if fetchErr != "" {
		statusStr = "error"
	}
	blockedStr := "false"
	if blocked {
		blockedStr = "true"
	}

	PageFetchesTotal.WithLabelValues(domain, statusStr, blockedStr).Inc()
	FetchDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordExtracted counts one extracted record by type.
func RecordExtracted(recordType string) {
	RecordsExtractedTotal.WithLabelValues(recordType).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
