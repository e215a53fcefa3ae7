package http

import (
	"net/http"
	"strconv"
	"time"

	"survey-offers/internal/handler/http/pathutil"
	"survey-offers/internal/handler/http/responsewriter"
	"survey-offers/internal/observability/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsMiddleware records count, latency and sizes of every request.
// Paths are normalized so that provider ids and categories do not become
// label values.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.ActiveConnections.Inc()
		defer metrics.ActiveConnections.Dec()

		path := pathutil.NormalizePath(r.URL.Path)
		rw := responsewriter.Wrap(w)

		start := time.Now()
		next.ServeHTTP(rw, r)

		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(rw.StatusCode()),
			time.Since(start), int(r.ContentLength), rw.BytesWritten())
	})
}

// MetricsHandler serves the Prometheus default gatherer.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
