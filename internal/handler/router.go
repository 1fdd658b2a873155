package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/librarian/internal/middleware"
)

const healthCheckTimeout = 3 * time.Second

// HealthChecker はデータベースの死活確認に使うインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// メトリクス（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler

	// 推薦
	RecommendationService RecommendationServiceInterface
	RecommendationConfig  RecommendationHandlerConfig

	// 蔵書
	BookService    BookServiceInterface
	CatalogService CatalogServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → CORS
//	  → (認証ルートのみ) Session → CSRF → RateLimit(General)
//
// /health, /metrics, /api/recommendations/health, /api/csrf-token は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	recHandler := NewRecommendationHandler(deps.RecommendationService, deps.RecommendationConfig, logger)
	bookHandler := NewBookHandler(deps.BookService, logger)
	catalogHandler := NewCatalogHandler(deps.CatalogService, logger)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/recommendations/health", recHandler.Health)
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig, logger))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig, logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/recommendations", func(r chi.Router) {
			// GET /api/recommendations - 推薦取得（推薦専用レート制限を追加）
			r.With(deps.RateLimiter.RecommendationMiddleware()).Get("/", recHandler.GetRecommendations)

			r.Get("/history", recHandler.ListHistory)
			r.Put("/history/{id}", recHandler.SetRejected)
		})

		r.Route("/api/books", func(r chi.Router) {
			r.Get("/search", catalogHandler.SearchBooks)
			r.Get("/{id}", catalogHandler.GetBook)
			r.Get("/{id}/related", bookHandler.GetRelatedBooks)
		})

		r.Get("/api/borrows", catalogHandler.ListBorrows)
	})

	return r
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// healthHandler はデータベース疎通を確認するハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "unknown"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := checker.PingContext(ctx); err != nil {
			logger.Error("health check failed", slog.String("error", err.Error()))
			middleware.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: "unreachable"})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
	}
}
