package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/calmate/internal/model"
)

// ErrInvalidToken はトークンが署名・期限・形状のいずれかの検証に失敗したことを示す。
var ErrInvalidToken = errors.New("session: invalid token")

// DefaultTTL はセッショントークンの既定有効期間。
const DefaultTTL = time.Hour

// 拒否理由（メトリクスのラベル値）。クライアントには区別して返さない。
const (
	RejectEmpty     = "empty"
	RejectDecrypt   = "decrypt"
	RejectSignature = "signature"
	RejectExpired   = "expired"
	RejectShape     = "shape"
	RejectRevoked   = "revoked"
	RejectStore     = "store_error"
)

// TokenRefresher はリフレッシュトークンで新しいアクセストークンを取得する。
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*model.OAuthToken, error)
}

// RevocationStore はログアウト済みトークン（jti）の失効リスト。
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// claims はトークン内側の署名層に載せるペイロード。
type claims struct {
	UserID       string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Picture      string `json:"picture,omitempty"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	jwt.RegisteredClaims
}

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	Secret       []byte
	TTL          time.Duration
	CookieSecure bool

	// OnReject は検証失敗時に理由付きで呼ばれる。nilなら何もしない。
	OnReject func(reason string)
	// Now はテスト用の時刻源。nilならtime.Now。
	Now func() time.Time
}

// Manager はセッショントークンの発行・検証・再署名・リフレッシュ・失効を行う。
// 内側はJWT(HS256)、外側はCodecによる暗号化の二層構造。
type Manager struct {
	codec       *Codec
	secret      []byte
	ttl         time.Duration
	secure      bool
	refresher   TokenRefresher
	revocations RevocationStore
	onReject    func(reason string)
	now         func() time.Time
}

// NewManager はManagerを生成する。refresher, revocationsはnil可。
func NewManager(codec *Codec, cfg ManagerConfig, refresher TokenRefresher, revocations RevocationStore) (*Manager, error) {
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	onReject := cfg.OnReject
	if onReject == nil {
		onReject = func(string) {}
	}

	return &Manager{
		codec:       codec,
		secret:      cfg.Secret,
		ttl:         ttl,
		secure:      cfg.CookieSecure,
		refresher:   refresher,
		revocations: revocations,
		onReject:    onReject,
		now:         now,
	}, nil
}

// TTL はトークンの有効期間を返す。Cookieの Max-Age と一致する。
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create はセッションを署名・暗号化したトークンを返す。
// SessionIDが空なら新しいjtiを採番する。
func (m *Manager) Create(s *model.UserSession) (string, error) {
	if s == nil || s.ID == "" || s.Email == "" {
		return "", fmt.Errorf("session requires id and email: %w", ErrInvalidToken)
	}

	jti := s.SessionID
	if jti == "" {
		jti = uuid.NewString()
	}
	return m.issue(claims{
		UserID:       s.ID,
		Email:        s.Email,
		Name:         s.Name,
		Picture:      s.Picture,
		Token:        s.Token,
		RefreshToken: s.RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID: jti,
		},
	})
}

// Verify はトークンを復号・検証し、セッションを返す。
// 失敗理由に関わらず (nil, false) を返し、理由はサーバー側のログとメトリクスにのみ残す。
func (m *Manager) Verify(ctx context.Context, token string) (*model.UserSession, bool) {
	c, reason := m.parse(ctx, token)
	if reason != "" {
		m.onReject(reason)
		slog.DebugContext(ctx, "session rejected", slog.String("reason", reason))
		return nil, false
	}
	return c.toSession(), true
}

// Resign は同じクレーム（jti含む）で有効期限だけを更新したトークンを返す。
// 現トークンが無効なら ("", false)。
func (m *Manager) Resign(ctx context.Context, token string) (string, bool) {
	s, ok := m.Verify(ctx, token)
	if !ok {
		return "", false
	}

	next, err := m.Create(s)
	if err != nil {
		slog.ErrorContext(ctx, "failed to re-sign session", slog.String("error", err.Error()))
		return "", false
	}
	return next, true
}

// Refresh はリフレッシュトークンでアクセストークンを更新し、再発行したトークンを返す。
// リフレッシュトークンがない場合、IdPエラー、通信エラーはすべて ("", false)。
func (m *Manager) Refresh(ctx context.Context, token string) (string, bool) {
	s, ok := m.Verify(ctx, token)
	if !ok || m.refresher == nil || s.RefreshToken == "" {
		return "", false
	}

	grant, err := m.refresher.RefreshAccessToken(ctx, s.RefreshToken)
	if err != nil {
		slog.WarnContext(ctx, "token refresh failed",
			slog.String("user_id", s.ID),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	if grant == nil || grant.AccessToken == "" {
		return "", false
	}

	s.Token = grant.AccessToken
	if grant.RefreshToken != "" {
		s.RefreshToken = grant.RefreshToken
	}

	next, err := m.Create(s)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue refreshed session", slog.String("error", err.Error()))
		return "", false
	}
	return next, true
}

// Revoke はトークンのjtiを失効リストに登録する。
// 同じjtiを持つ再署名済みトークンは提示されたトークンより後に失効しうるため、
// 今から発行できる最長の有効期限（現在時刻+TTL）まで登録する。
// 無効なトークンや失効リスト未設定の場合は何もしない。
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if m.revocations == nil {
		return nil
	}
	c, reason := m.parse(ctx, token)
	if reason != "" {
		return nil
	}
	if err := m.revocations.Revoke(ctx, c.ID, m.now().Add(m.ttl)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (m *Manager) issue(c claims) (string, error) {
	now := m.now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return m.codec.Encrypt([]byte(signed))
}

// parse は検証済みクレームか、失敗理由を返す。
func (m *Manager) parse(ctx context.Context, token string) (*claims, string) {
	if token == "" {
		return nil, RejectEmpty
	}

	signed, err := m.codec.Decrypt(token)
	if err != nil {
		return nil, RejectDecrypt
	}

	var c claims
	_, err = jwt.ParseWithClaims(string(signed), &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, RejectExpired
		}
		return nil, RejectSignature
	}

	if c.UserID == "" || c.Email == "" || c.ID == "" || c.IssuedAt == nil {
		return nil, RejectShape
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, c.ID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check session revocation", slog.String("error", err.Error()))
			return nil, RejectStore
		}
		if revoked {
			return nil, RejectRevoked
		}
	}

	return &c, ""
}

func (c *claims) toSession() *model.UserSession {
	return &model.UserSession{
		ID:           c.UserID,
		Email:        c.Email,
		Name:         c.Name,
		Picture:      c.Picture,
		Token:        c.Token,
		RefreshToken: c.RefreshToken,
		SessionID:    c.ID,
		IssuedAt:     c.IssuedAt.Time,
		ExpiresAt:    c.ExpiresAt.Time,
	}
}
