package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

var requestLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "registrar_request_latency_seconds",
		Help: "Request latency in seconds by route, verb, and response code.",
		//nolint:gomnd
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 18), // 1 ms to ~2 minutes
	},
	[]string{"route", "verb", "code"},
)

func init() {
	prometheus.MustRegister(
		requestLatency,
	)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// withLatency records requestLatency for every routed request. The route
// template is used as label so path variables do not explode cardinality.
func withLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			route := "unknown"
			if r := mux.CurrentRoute(req); r != nil {
				if tpl, err := r.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			requestLatency.WithLabelValues(route, req.Method, strconv.Itoa(rec.code)).Observe(time.Since(start).Seconds())
		}()
		next.ServeHTTP(rec, req)
	})
}
