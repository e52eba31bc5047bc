package middleware

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/feedbackd/internal/metrics"
)

// Metrics returns middleware that counts requests by method and status code.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Inc()
	})
}
