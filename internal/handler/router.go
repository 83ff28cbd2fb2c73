package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfedu/membergate/internal/metrics"
	"github.com/wolfedu/membergate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier       middleware.TokenVerifier
	APIKeyAuthenticator middleware.APIKeyAuthenticator
	CORSAllowedOrigin   string
	RateLimiter         *middleware.RateLimiter
	Logger              *slog.Logger

	// サービス
	AuthService  AuthServiceInterface
	UserService  UserServiceInterface
	SyncEngine   SyncRunner
	VaultService VaultServiceInterface

	// メトリクス
	Collector      metrics.MetricsCollector
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (ルートごとの認証・レート制限)
//
// ログインとデスクトップ認証は認証前のエンドポイントのため、
// IP単位のログインレート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.AuthService, deps.Collector)
	userHandler := NewUserHandler(deps.UserService)
	syncHandler := NewSyncHandler(deps.SyncEngine)
	cookieHandler := NewCookieHandler(deps.VaultService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 認証エンドポイント（IP単位のログインレート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.LoginMiddleware())

		r.Post("/api/auth/login", authHandler.Login)
		r.Post("/api/desktop-auth", authHandler.DesktopAuth)
	})

	r.Post("/api/auth/logout", authHandler.Logout)

	// --- セッショントークン認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.TokenVerifier, deps.Collector))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Post("/", userHandler.CreateUser)
		})

		// 外部システム同期
		r.Post("/api/sync", syncHandler.RunSync)
	})

	// --- APIキー認証が必要なルート（デスクトップクライアント） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyAuthMiddleware(deps.APIKeyAuthenticator))

		r.Route("/api/cookies", func(r chi.Router) {
			r.Get("/", cookieHandler.GetCookies)
			r.Post("/", cookieHandler.StoreCookies)
			r.Delete("/", cookieHandler.DeleteCookies)
		})
	})

	return r
}
