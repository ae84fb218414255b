package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/calmate/internal/model"
)

// NewOriginCheckMiddleware は状態変更メソッド（POST, PUT, PATCH, DELETE）について、
// Origin（無ければReferer）がアプリケーション自身のオリジンと一致することを要求する。
// SameSite=Lax のCookieと併せて、別サイトからの POST /api/ai を防ぐ。
// どちらのヘッダーも無いリクエスト（curl等の非ブラウザクライアント）は通す。
func NewOriginCheckMiddleware(baseURL string) func(next http.Handler) http.Handler {
	allowed := originOf(baseURL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = originOf(r.Header.Get("Referer"))
			}
			if origin != "" && !strings.EqualFold(origin, allowed) {
				slog.WarnContext(r.Context(), "cross-origin request rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteJSONError(w, http.StatusForbidden, &model.APIError{
					Code:    model.ErrCodeForbidden,
					Message: "Cross-origin request rejected",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// originOf は "scheme://host[:port]" を返す。解釈できなければ空文字。
func originOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
