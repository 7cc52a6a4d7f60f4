package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/userapi/internal/metrics"
	"github.com/hitoshi/userapi/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter // nilの場合はレート制限しない
	Metrics           middleware.HTTPMetricsRecorder
	Gatherer          prometheus.Gatherer // nilの場合は/metricsを公開しない

	// ヘルスチェック
	HealthChecker HealthChecker

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// Recoveryが返す500もMetricsに記録される。
//
// /api 配下にはさらに RateLimit(General) が適用され、ユーザー作成には RateLimit(Store) が追加される。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorResponseBody{Message: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusMethodNotAllowed, middleware.ErrorResponseBody{Message: "Method not allowed"})
	})

	// --- 運用系のルート ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	userHandler := NewUserHandler(deps.UserService)

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Route("/user", func(r chi.Router) {
			r.Get("/index", userHandler.Index)
			r.Get("/show/{id}", userHandler.Show)

			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.StoreMiddleware()).Post("/store", userHandler.Store)
			} else {
				r.Post("/store", userHandler.Store)
			}

			r.Post("/phone", userHandler.NormalizePhone)
		})
	})

	return r
}
