// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/calmate/internal/middleware"
	"github.com/hitoshi/calmate/internal/model"
	"github.com/hitoshi/calmate/internal/session"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthStateMaxAge    = 600 // 10分
	appRedirectPath     = "/app"
	authFailureRedirect = "/login?error=auth_failed"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。auth.Service が満たす。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (string, *model.UserSession, error)
	RefreshOrResign(ctx context.Context, token string) (string, bool)
}

// SessionCookieWriter はセッションCookieを書き込む。session.Manager が満たす。
type SessionCookieWriter interface {
	SetCookie(w http.ResponseWriter, token string)
	ClearCookie(w http.ResponseWriter)
}

// LoginRecorder はOAuthログインの結果を記録する。metrics.Collector が満たす。
type LoginRecorder interface {
	RecordOAuthLogin(outcome string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure bool
}

// AuthHandler はOAuth認証とセッション更新のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	cookies  SessionCookieWriter
	recorder LoginRecorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnil可。
func NewAuthHandler(service AuthServiceInterface, cookies SessionCookieWriter, recorder LoginRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		cookies:  cookies,
		recorder: recorder,
		config:   config,
	}
}

// Google はOAuthフローの両ステップを1つのパスで扱う。
// GET /login/auth/google             → 同意画面へリダイレクト
// GET /login/auth/google?code=&state= → トークン交換してセッションCookieを設定
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("code") == "" && q.Get("error") == "" {
		h.startLogin(w, r)
		return
	}
	h.callback(w, r)
}

func (h *AuthHandler) startLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.setStateCookie(w, state, oauthStateMaxAge)
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusFound)
}

func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	// stateの検証（CSRF対策）。使い終わったstateは常に破棄する
	state := q.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	h.setStateCookie(w, "", -1)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.WarnContext(ctx, "oauth state mismatch")
		h.fail(w, r, "state_mismatch")
		return
	}

	if providerErr := q.Get("error"); providerErr != "" {
		slog.WarnContext(ctx, "oauth consent denied", slog.String("error", providerErr))
		h.fail(w, r, "denied")
		return
	}

	token, user, err := h.service.HandleCallback(ctx, q.Get("code"))
	if err != nil {
		slog.ErrorContext(ctx, "oauth callback failed", slog.String("error", err.Error()))
		h.fail(w, r, "failure")
		return
	}

	h.cookies.SetCookie(w, token)
	h.record("success")
	slog.InfoContext(ctx, "session established", slog.String("user_id", user.ID))
	http.Redirect(w, r, appRedirectPath, http.StatusFound)
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, outcome string) {
	h.record(outcome)
	http.Redirect(w, r, authFailureRedirect, http.StatusFound)
}

func (h *AuthHandler) record(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordOAuthLogin(outcome)
	}
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshResponse はセッション更新のレスポンス。
type refreshResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Refresh はアクセストークンの更新（できなければ再署名）を行い、Cookieを差し替える。
// GET|POST /login/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, refreshResponse{Success: false, Message: "Not authenticated"})
		return
	}

	next, ok := h.service.RefreshOrResign(r.Context(), token)
	if !ok {
		h.cookies.ClearCookie(w)
		writeJSON(w, http.StatusUnauthorized, refreshResponse{Success: false, Message: "Not authenticated"})
		return
	}

	h.cookies.SetCookie(w, next)
	writeJSON(w, http.StatusOK, refreshResponse{Success: true, Message: "Token refreshed successfully"})
}

// Me は現在のログインユーザー情報を返す。トークン類は含めない。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PublicUserFromContext(r.Context())
	if !ok {
		middleware.WriteJSONError(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
