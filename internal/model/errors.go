// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// JSONレスポンスの error フィールドに Message、code フィールドに Code を出力する。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUpstream       = "UPSTREAM_ERROR"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
// 失効・改ざん・期限切れを区別せず、常に同じメッセージを返す。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "Unauthorized",
	}
}

// NewCalendarAuthRequiredError はCalendarアクセストークンが無い場合のエラーを生成する。
func NewCalendarAuthRequiredError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "Google Calendar authentication required",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidRequest,
		Message: reason,
	}
}

// NewUpstreamError は外部プロバイダー（IdP, Calendar, LLM）の失敗を表すエラーを生成する。
func NewUpstreamError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeUpstream,
		Message: message,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests. Please try again later.",
	}
}
