package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contactd_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contactd_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contactd_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contactd_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contactd_mutations_total",
		Help: "Total engine mutations by operation and outcome.",
	}, []string{"operation", "outcome"})

	contactsMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contactd_contacts_merged_total",
		Help: "Raw contacts moved into a surviving contact by aggregation.",
	})

	contactsSplitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contactd_contacts_split_total",
		Help: "Raw contacts split out into a new contact by aggregation.",
	})

	photosSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contactd_photos_swept_total",
		Help: "Unreferenced photo records removed by the GC sweep.",
	})

	danglingPhotoRefsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contactd_dangling_photo_refs_total",
		Help: "Photo references cleared because the record was missing.",
	})
)

// Middleware records request metrics per chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routePattern(r)
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			statusCode := strconv.Itoa(status)
			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation.
func ObserveDBLatency(operation string, start time.Time) {
	dbLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveMutation counts one engine mutation by outcome.
func ObserveMutation(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// AddContactsMerged counts raw contacts moved by a merge.
func AddContactsMerged(n int) {
	contactsMergedTotal.Add(float64(n))
}

// AddContactsSplit counts raw contacts split into a new contact.
func AddContactsSplit(n int) {
	contactsSplitTotal.Add(float64(n))
}

// AddPhotosSwept counts photo records removed by GC.
func AddPhotosSwept(n int) {
	photosSweptTotal.Add(float64(n))
}

// AddDanglingPhotoRefs counts self-healed dangling references.
func AddDanglingPhotoRefs(n int) {
	danglingPhotoRefsTotal.Add(float64(n))
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
