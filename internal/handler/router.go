package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/calmate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Sessions    middleware.SessionVerifier
	RateLimiter *middleware.RateLimiter
	BaseURL     string
	HSTS        bool

	// ハンドラー
	Auth     *AuthHandler
	Calendar *CalendarHandler
	AI       *AIHandler

	// Pages は未知のパス（ページ・静的ファイル）を扱う。nilなら404。
	Pages http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
// 外側のロギング・リカバリーはapp側で付与する。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → AuthGate → OriginCheck → RateLimit(API) [→ RateLimit(AI)]
//
// 認可はAuthGateがパス単位で一括判定する（未列挙のパスは保護対象）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewAuthGateMiddleware(deps.Sessions))
	r.Use(middleware.NewOriginCheckMiddleware(deps.BaseURL))

	r.Get("/health", health)

	// OAuthフロー。/logout はゲートが処理する
	r.Get("/login/auth/google", deps.Auth.Google)

	// --- 認証が必要なAPI ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.APIMiddleware())

		r.Get("/login/auth/refresh", deps.Auth.Refresh)
		r.Post("/login/auth/refresh", deps.Auth.Refresh)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", deps.Auth.Me)
			r.Get("/calendar", deps.Calendar.ListYear)
			r.With(deps.RateLimiter.AIMiddleware()).Post("/ai", deps.AI.Handle)
		})
	})

	pages := deps.Pages
	if pages == nil {
		pages = http.NotFoundHandler()
	}
	r.NotFound(pages.ServeHTTP)

	return r
}

// health はコンテナのヘルスチェック用。
// GET /health
func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
