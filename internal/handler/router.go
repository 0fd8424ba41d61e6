package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/habitman/internal/metrics"
	"github.com/hitoshi/habitman/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 習慣
	HabitService HabitServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → Metrics
//
// 認証ルート（/auth/*）はIP単位、習慣API（/api/habits）はBearer認証の後に
// ユーザー単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Collector != nil {
		r.Use(metrics.Middleware(deps.Collector))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Collector)
	habitHandler := NewHabitHandler(deps.HabitService, deps.Collector)

	requireAuth := middleware.NewAuthMiddleware(deps.TokenVerifier)

	// --- 認証不要のルート ---

	r.Get("/api/health", Health)

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// 認証ルート（IP単位のレート制限）
	r.Route("/auth", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.AuthMiddleware())
		}

		r.Post("/signup", authHandler.SignUp)
		r.Post("/token", authHandler.Token)
		r.Post("/verify", authHandler.Verify)
		r.Post("/resend", authHandler.Resend)
		r.Post("/recover", authHandler.Recover)

		// OAuthフロー
		r.Get("/{provider}/login", authHandler.OAuthLogin)
		r.Get("/{provider}/callback", authHandler.OAuthCallback)

		// Bearer認証が必要な認証ルート
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", authHandler.Logout)
			r.Get("/user", authHandler.GetUser)
			r.Put("/user", authHandler.UpdateUser)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Bearer認証 → RateLimit(General)
	r.Route("/api/habits", func(r chi.Router) {
		r.Use(requireAuth)
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Get("/", habitHandler.List)
		r.Post("/", habitHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/toggle", habitHandler.Toggle)
			r.Delete("/", habitHandler.Delete)
		})
	})

	// 未定義ルートは統一フォーマットの404を返す
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorBody(w, http.StatusNotFound, middleware.ErrorBody{
			Error: "Route not found",
			Path:  r.URL.Path,
		})
	})

	return r
}
