// Package model はドメインモデルを定義する。
package model

import "time"

// UserSession はセッショントークンに格納される認証済みユーザーを表す。
// Token と RefreshToken は機密情報であり、ハンドラー以外の層に渡してはならない。
type UserSession struct {
	ID           string // IdPの安定したユーザーID
	Email        string
	Name         string
	Picture      string // プロフィール画像URL
	Token        string // Calendar APIのアクセストークン
	RefreshToken string // 任意。access_type=offline で同意した場合のみ発行される

	// SessionID はトークンの jti。再署名・リフレッシュを跨いで維持され、ログアウト時の失効に使う。
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// PublicUser はセッションから機密フィールドを除いた公開用の射影。
type PublicUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Public は機密フィールド（Token, RefreshToken）を含まない射影を返す。
func (s *UserSession) Public() PublicUser {
	return PublicUser{
		ID:      s.ID,
		Email:   s.Email,
		Name:    s.Name,
		Picture: s.Picture,
	}
}

// HasCalendarAccess はCalendar APIを呼び出せるアクセストークンを保持しているかを返す。
func (s *UserSession) HasCalendarAccess() bool {
	return s != nil && s.Token != ""
}

// OAuthToken はIdPのトークンエンドポイントから得たトークン一式。
type OAuthToken struct {
	AccessToken  string
	RefreshToken string // ローテーションされなかった場合は空
	ExpiresIn    int    // 秒
}
