package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/calmate/internal/model"
	"github.com/hitoshi/calmate/internal/session"
)

// RouteKind はパスのアクセス区分。
type RouteKind int

const (
	// RoutePublic はセッションなしで到達できる。
	RoutePublic RouteKind = iota
	// RouteProtectedAPI は未認証時に401 JSONを返す。
	RouteProtectedAPI
	// RouteProtectedPage は未認証時に/loginへリダイレクトする。
	RouteProtectedPage
)

const (
	loginPath       = "/login"
	logoutPath      = "/logout"
	appPath         = "/app"
	refreshPath     = "/login/auth/refresh"
	logoutRedirect  = "/?logout=true"
	oauthPathPrefix = "/login/auth/"
)

var publicExactPaths = map[string]bool{
	"/":       true,
	"/login":  true,
	"/error":  true,
	"/health": true,
}

var staticPrefixes = []string{"/assets/", "/static/", "/_app/"}

var staticSuffixes = []string{
	".js", ".css", ".ico", ".png", ".svg", ".jpg", ".webp", ".woff", ".woff2", ".map", ".txt",
}

// Classify はパスを分類する。明示的に公開と列挙したもの以外はすべて保護対象（default-deny）。
func Classify(path string) RouteKind {
	if publicExactPaths[path] {
		return RoutePublic
	}
	if strings.HasPrefix(path, oauthPathPrefix) && path != refreshPath {
		return RoutePublic
	}
	if path == "/api" || strings.HasPrefix(path, "/api/") || path == refreshPath {
		return RouteProtectedAPI
	}
	if isStaticAsset(path) {
		return RoutePublic
	}
	return RouteProtectedPage
}

// isStaticAsset は静的ファイルのパスかを返す。
// 拡張子での判定はルート直下のファイル（/favicon.ico など）に限る。
func isStaticAsset(path string) bool {
	for _, p := range staticPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	if strings.Count(path, "/") != 1 {
		return false
	}
	lower := strings.ToLower(path)
	for _, s := range staticSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// SessionVerifier はゲートが必要とするセッション操作。session.Manager が満たす。
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*model.UserSession, bool)
	Revoke(ctx context.Context, token string) error
	ClearCookie(w http.ResponseWriter)
}

// NewAuthGateMiddleware はセッションCookieを検証し、ルート区分に従って通過・拒否を決めるミドルウェアを返す。
// /login（認証済み）と /logout の特別扱いは、公開・保護の判定より先に評価する。
// 有効なセッションはどのパスでもコンテキストに注入する。
func NewAuthGateMiddleware(sessions SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			path := r.URL.Path

			token := session.TokenFromRequest(r)
			var current *model.UserSession
			if token != "" {
				s, ok := sessions.Verify(ctx, token)
				if ok {
					current = s
				} else {
					sessions.ClearCookie(w)
				}
			}

			if path == logoutPath {
				if current != nil {
					if err := sessions.Revoke(ctx, token); err != nil {
						slog.WarnContext(ctx, "failed to revoke session on logout",
							slog.String("error", err.Error()),
						)
					}
				}
				sessions.ClearCookie(w)
				http.Redirect(w, r, logoutRedirect, http.StatusFound)
				return
			}

			if path == loginPath && current != nil {
				http.Redirect(w, r, appPath, http.StatusFound)
				return
			}

			if current != nil {
				ctx = ContextWithSession(ctx, current)
				markUser(ctx, current.ID)
				r = r.WithContext(ctx)
			}

			switch Classify(path) {
			case RouteProtectedAPI:
				if current == nil {
					WriteJSONError(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
			case RouteProtectedPage:
				if current == nil {
					http.Redirect(w, r, loginPath, http.StatusFound)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
