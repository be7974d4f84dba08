package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector counts requests by route pattern and status.
type MetricsCollector struct {
	requests *prometheus.CounterVec
}

// NewMetricsCollector registers its counter with reg.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinaht_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
	reg.MustRegister(requests)
	return &MetricsCollector{requests: requests}
}

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		mc.requests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
	})
}
