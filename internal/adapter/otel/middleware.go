package otel

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// untraced paths are probed too often to be worth a span.
var untraced = map[string]bool{"/health": true, "/metrics": true}

// HTTPMiddleware returns a chi-compatible middleware that creates spans for
// HTTP requests, skipping health and scrape endpoints.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithFilter(func(r *http.Request) bool { return !untraced[r.URL.Path] }),
		)
	}
}
