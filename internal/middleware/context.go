// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/calmate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey     = contextKey("session")
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo はロギングミドルウェアが外側で用意し、内側のゲートが書き込む可変領域。
// コンテキストは内側にしか伝播しないため、ゲートが確定したユーザーIDをログへ戻すのに使う。
type requestInfo struct {
	requestID string
	userID    string
}

// ContextWithSession はコンテキストに検証済みセッションを注入する。
// テストやゲート以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, s *model.UserSession) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext は検証済みセッションを返す。アクセストークンを含むため、ハンドラー内でのみ使うこと。
func SessionFromContext(ctx context.Context) (*model.UserSession, bool) {
	s, ok := ctx.Value(sessionContextKey).(*model.UserSession)
	return s, ok && s != nil
}

// PublicUserFromContext は機密フィールドを除いたユーザー情報を返す。
func PublicUserFromContext(ctx context.Context) (model.PublicUser, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return model.PublicUser{}, false
	}
	return s.Public(), true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ゲートを通過した認証済みリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	s, ok := SessionFromContext(ctx)
	if !ok || s.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return s.ID, nil
}

// RequestIDFromContext はロギングミドルウェアが採番したリクエストIDを返す。
func RequestIDFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		return info.requestID
	}
	return ""
}

func markUser(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.userID = userID
	}
}
