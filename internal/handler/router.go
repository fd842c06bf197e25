package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/RazK/Voyage-Voyage/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Authenticator     middleware.TokenAuthenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.HTTPStatusRecorder

	// 認証
	AuthService AuthServiceInterface

	// Googleフォト ピッカー
	PickerService PickerServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	Now            func() time.Time
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Recovery → SecurityHeaders → CORS → StatusMetrics
//	/auth/*: RateLimit(Auth)
//	/api/*:  Session → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusRecorder))
	}

	authHandler := NewAuthHandler(deps.AuthService)
	pickerHandler := NewPickerHandler(deps.PickerService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Now))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Get("/{provider}/start", authHandler.Start)
		r.Get("/{provider}/callback", authHandler.Callback)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/picker/session", func(r chi.Router) {
			r.Post("/", pickerHandler.CreateSession)
			r.Get("/{id}", pickerHandler.GetSession)
			r.Get("/{id}/items", pickerHandler.ListMediaItems)
		})

		r.Delete("/users/me", userHandler.Withdraw)
	})

	return r
}
