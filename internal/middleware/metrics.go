package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPMetricsRecorder はHTTPリクエストのメトリクスを記録するインターフェース。
type HTTPMetricsRecorder interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// unmatchedRoute はどのルートにも一致しなかったリクエストのラベル。
const unmatchedRoute = "unmatched"

// NewMetricsMiddleware はリクエストごとにメトリクスを記録するミドルウェアを返す。
// ラベルにはchiのルートパターンを使い、IDなどの値でカーディナリティが増えないようにする。
func NewMetricsMiddleware(recorder HTTPMetricsRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			recorder.RecordHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
		})
	}
}
