// Package auth はGoogle OAuthによるログインとセッション発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/calmate/internal/model"
)

var (
	// ErrNoRefreshToken はセッションにリフレッシュトークンがないことを示す。
	ErrNoRefreshToken = errors.New("auth: no refresh token")
	// ErrMissingAccessToken はトークンレスポンスにアクセストークンがないことを示す。
	ErrMissingAccessToken = errors.New("auth: missing access token")
	// ErrMissingCode はコールバックに認可コードがないことを示す。
	ErrMissingCode = errors.New("auth: missing authorization code")
)

// Profile はIdPから取得した基本プロフィール。
type Profile struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL は同意画面のURLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換する。
	ExchangeCode(ctx context.Context, code string) (*model.OAuthToken, error)
	// FetchProfile はアクセストークンでプロフィールを取得する。
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// SessionIssuer はセッショントークンを発行・更新する。session.Manager が満たす。
type SessionIssuer interface {
	Create(s *model.UserSession) (string, error)
	Resign(ctx context.Context, token string) (string, bool)
	Refresh(ctx context.Context, token string) (string, bool)
}

// Service はログイン・更新の処理を提供する。
type Service struct {
	oauth    OAuthProvider
	sessions SessionIssuer
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, sessions SessionIssuer) *Service {
	return &Service{oauth: oauth, sessions: sessions}
}

// GetLoginURL は同意画面のURLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は 交換 → プロフィール取得 → セッション発行 を順に行い、
// 最初に失敗したステップで中断する。
func (s *Service) HandleCallback(ctx context.Context, code string) (string, *model.UserSession, error) {
	if code == "" {
		return "", nil, ErrMissingCode
	}

	tok, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange step failed: %w", err)
	}

	profile, err := s.oauth.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("profile step failed: %w", err)
	}

	session := &model.UserSession{
		ID:           profile.ID,
		Email:        profile.Email,
		Name:         profile.Name,
		Picture:      profile.Picture,
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	token, err := s.sessions.Create(session)
	if err != nil {
		return "", nil, fmt.Errorf("session step failed: %w", err)
	}

	slog.InfoContext(ctx, "user logged in",
		slog.String("user_id", profile.ID),
		slog.Bool("has_refresh_token", tok.RefreshToken != ""),
	)
	return token, session, nil
}

// RefreshOrResign はリフレッシュトークンでアクセストークンの更新を試み、
// できなければ同じクレームで再署名する。どちらも失敗すれば ("", false)。
func (s *Service) RefreshOrResign(ctx context.Context, token string) (string, bool) {
	if next, ok := s.sessions.Refresh(ctx, token); ok {
		return next, true
	}
	return s.sessions.Resign(ctx, token)
}
