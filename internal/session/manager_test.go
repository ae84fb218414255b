package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/calmate/internal/model"
)

// --- モック定義 ---

type mockRefresher struct {
	refreshFn func(ctx context.Context, refreshToken string) (*model.OAuthToken, error)
	calls     int
}

func (m *mockRefresher) RefreshAccessToken(ctx context.Context, refreshToken string) (*model.OAuthToken, error) {
	m.calls++
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, errors.New("not configured")
}

type mockRevocations struct {
	mu        sync.Mutex
	revoked   map[string]time.Time
	isRevoked func(ctx context.Context, jti string) (bool, error)
	now       func() time.Time // 設定時はエントリの期限を評価する
}

func newMockRevocations() *mockRevocations {
	return &mockRevocations{revoked: make(map[string]time.Time)}
}

func (m *mockRevocations) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = expiresAt
	return nil
}

func (m *mockRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if m.isRevoked != nil {
		return m.isRevoked(ctx, jti)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt, ok := m.revoked[jti]
	if ok && m.now != nil {
		return expiresAt.After(m.now()), nil
	}
	return ok, nil
}

var _ TokenRefresher = (*mockRefresher)(nil)
var _ RevocationStore = (*mockRevocations)(nil)

// --- ヘルパー ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, clk *clock, refresher TokenRefresher, revocations RevocationStore) (*Manager, *[]string) {
	t.Helper()
	codec, err := NewCodec(testKey(7), []byte("iv"))
	require.NoError(t, err)

	var reasons []string
	cfg := ManagerConfig{
		Secret:       []byte("test-signing-secret"),
		TTL:          time.Hour,
		CookieSecure: true,
		OnReject:     func(reason string) { reasons = append(reasons, reason) },
	}
	if clk != nil {
		cfg.Now = clk.Now
	}

	m, err := NewManager(codec, cfg, refresher, revocations)
	require.NoError(t, err)
	return m, &reasons
}

func testSession() *model.UserSession {
	return &model.UserSession{
		ID:           "google-123",
		Email:        "alice@example.com",
		Name:         "Alice",
		Picture:      "https://example.com/alice.png",
		Token:        "ya29.access",
		RefreshToken: "1//refresh",
	}
}

// --- テスト ---

func TestManager_CreateVerify_RoundTrip(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)

	token, err := m.Create(testSession())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, ok := m.Verify(context.Background(), token)
	require.True(t, ok)
	assert.Equal(t, "google-123", got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "https://example.com/alice.png", got.Picture)
	assert.Equal(t, "ya29.access", got.Token)
	assert.Equal(t, "1//refresh", got.RefreshToken)
	assert.NotEmpty(t, got.SessionID)
	assert.Equal(t, time.Hour, got.ExpiresAt.Sub(got.IssuedAt))
}

func TestManager_Create_RequiresIdentity(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)

	_, err := m.Create(&model.UserSession{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Create(&model.UserSession{ID: "id"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Create(nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Verify_RejectsInvalidTokens(t *testing.T) {
	m, reasons := newTestManager(t, nil, nil, nil)

	otherCodec, err := NewCodec(testKey(9), nil)
	require.NoError(t, err)
	foreign, err := (&Manager{
		codec:  otherCodec,
		secret: []byte("test-signing-secret"),
		ttl:    time.Hour,
		now:    time.Now,
	}).Create(testSession())
	require.NoError(t, err)

	for _, token := range []string{"", "random-garbage", foreign} {
		s, ok := m.Verify(context.Background(), token)
		assert.False(t, ok)
		assert.Nil(t, s)
	}
	assert.Equal(t, []string{RejectEmpty, RejectDecrypt, RejectDecrypt}, *reasons)
}

func TestManager_Verify_RejectsExpiredToken(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m, reasons := newTestManager(t, clk, nil, nil)

	token, err := m.Create(testSession())
	require.NoError(t, err)

	clk.Advance(time.Hour + time.Second)

	_, ok := m.Verify(context.Background(), token)
	assert.False(t, ok)
	assert.Equal(t, []string{RejectExpired}, *reasons)
}

func TestManager_Verify_RejectsDifferentSecret(t *testing.T) {
	m, reasons := newTestManager(t, nil, nil, nil)

	forged := &Manager{codec: m.codec, secret: []byte("attacker"), ttl: time.Hour, now: time.Now}
	token, err := forged.Create(testSession())
	require.NoError(t, err)

	_, ok := m.Verify(context.Background(), token)
	assert.False(t, ok)
	assert.Equal(t, []string{RejectSignature}, *reasons)
}

func TestManager_Verify_RejectsMissingIdentityFields(t *testing.T) {
	m, reasons := newTestManager(t, nil, nil, nil)

	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: "no identity",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(m.secret)
	require.NoError(t, err)
	token, err := m.codec.Encrypt([]byte(signed))
	require.NoError(t, err)

	_, ok := m.Verify(context.Background(), token)
	assert.False(t, ok)
	assert.Equal(t, []string{RejectShape}, *reasons)
}

func TestManager_Verify_RejectsNoneAlgorithm(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)

	now := time.Now()
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		UserID: "google-123",
		Email:  "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	token, err := m.codec.Encrypt([]byte(unsigned))
	require.NoError(t, err)

	_, ok := m.Verify(context.Background(), token)
	assert.False(t, ok)
}

func TestManager_Resign_ExtendsExpiryAndKeepsIdentity(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m, _ := newTestManager(t, clk, nil, nil)

	token, err := m.Create(testSession())
	require.NoError(t, err)
	original, ok := m.Verify(context.Background(), token)
	require.True(t, ok)

	clk.Advance(30 * time.Minute)

	resigned, ok := m.Resign(context.Background(), token)
	require.True(t, ok)
	assert.NotEqual(t, token, resigned)

	got, ok := m.Verify(context.Background(), resigned)
	require.True(t, ok)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.Email, got.Email)
	assert.Equal(t, original.Name, got.Name)
	assert.Equal(t, original.SessionID, got.SessionID)
	assert.True(t, got.ExpiresAt.After(original.ExpiresAt))
	assert.True(t, got.ExpiresAt.After(original.IssuedAt))
}

func TestManager_Resign_InvalidToken(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)

	for _, token := range []string{"", "garbage"} {
		got, ok := m.Resign(context.Background(), token)
		assert.False(t, ok)
		assert.Empty(t, got)
	}
}

func TestManager_Refresh_UpdatesAccessToken(t *testing.T) {
	refresher := &mockRefresher{
		refreshFn: func(_ context.Context, refreshToken string) (*model.OAuthToken, error) {
			assert.Equal(t, "1//refresh", refreshToken)
			return &model.OAuthToken{AccessToken: "ya29.new", ExpiresIn: 3599}, nil
		},
	}
	m, _ := newTestManager(t, nil, refresher, nil)

	token, err := m.Create(testSession())
	require.NoError(t, err)

	refreshed, ok := m.Refresh(context.Background(), token)
	require.True(t, ok)

	got, ok := m.Verify(context.Background(), refreshed)
	require.True(t, ok)
	assert.Equal(t, "ya29.new", got.Token)
	assert.Equal(t, "1//refresh", got.RefreshToken, "refresh token is kept when not rotated")
	assert.Equal(t, "google-123", got.ID)
}

func TestManager_Refresh_RotatedRefreshToken(t *testing.T) {
	refresher := &mockRefresher{
		refreshFn: func(context.Context, string) (*model.OAuthToken, error) {
			return &model.OAuthToken{AccessToken: "ya29.new", RefreshToken: "1//rotated"}, nil
		},
	}
	m, _ := newTestManager(t, nil, refresher, nil)

	token, err := m.Create(testSession())
	require.NoError(t, err)

	refreshed, ok := m.Refresh(context.Background(), token)
	require.True(t, ok)

	got, ok := m.Verify(context.Background(), refreshed)
	require.True(t, ok)
	assert.Equal(t, "1//rotated", got.RefreshToken)
}

func TestManager_Refresh_Failures(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		refresher := &mockRefresher{
			refreshFn: func(context.Context, string) (*model.OAuthToken, error) {
				return nil, errors.New("invalid_grant")
			},
		}
		m, _ := newTestManager(t, nil, refresher, nil)
		token, err := m.Create(testSession())
		require.NoError(t, err)

		_, ok := m.Refresh(context.Background(), token)
		assert.False(t, ok)
	})

	t.Run("empty access token", func(t *testing.T) {
		refresher := &mockRefresher{
			refreshFn: func(context.Context, string) (*model.OAuthToken, error) {
				return &model.OAuthToken{}, nil
			},
		}
		m, _ := newTestManager(t, nil, refresher, nil)
		token, err := m.Create(testSession())
		require.NoError(t, err)

		_, ok := m.Refresh(context.Background(), token)
		assert.False(t, ok)
	})

	t.Run("no refresh token", func(t *testing.T) {
		refresher := &mockRefresher{}
		m, _ := newTestManager(t, nil, refresher, nil)
		s := testSession()
		s.RefreshToken = ""
		token, err := m.Create(s)
		require.NoError(t, err)

		_, ok := m.Refresh(context.Background(), token)
		assert.False(t, ok)
		assert.Zero(t, refresher.calls, "provider must not be called without a refresh token")
	})

	t.Run("invalid session", func(t *testing.T) {
		refresher := &mockRefresher{}
		m, _ := newTestManager(t, nil, refresher, nil)

		_, ok := m.Refresh(context.Background(), "garbage")
		assert.False(t, ok)
		assert.Zero(t, refresher.calls)
	})
}

func TestManager_Revoke_RejectsLaterVerification(t *testing.T) {
	revocations := newMockRevocations()
	m, reasons := newTestManager(t, nil, nil, revocations)

	token, err := m.Create(testSession())
	require.NoError(t, err)
	resigned, ok := m.Resign(context.Background(), token)
	require.True(t, ok)

	require.NoError(t, m.Revoke(context.Background(), token))

	_, ok = m.Verify(context.Background(), token)
	assert.False(t, ok)
	_, ok = m.Verify(context.Background(), resigned)
	assert.False(t, ok, "re-signed tokens share the jti and are revoked together")
	assert.Equal(t, []string{RejectRevoked, RejectRevoked}, *reasons)
}

func TestManager_Revoke_CoversLaterResignedToken(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	revocations := newMockRevocations()
	revocations.now = clk.Now
	m, _ := newTestManager(t, clk, nil, revocations)

	token, err := m.Create(testSession())
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	sibling, ok := m.Resign(context.Background(), token)
	require.True(t, ok)
	s, ok := m.Verify(context.Background(), sibling)
	require.True(t, ok)

	// 古い方のトークンでログアウトする
	require.NoError(t, m.Revoke(context.Background(), token))

	_, ok = m.Verify(context.Background(), sibling)
	assert.False(t, ok)

	// 提示トークンのexp(11:00)を過ぎても、再署名トークンのexp(11:30)までは失効が続く
	clk.Advance(31 * time.Minute)
	_, ok = m.Verify(context.Background(), sibling)
	assert.False(t, ok, "sibling must stay revoked after the presented token expires")
	_, ok = m.Resign(context.Background(), sibling)
	assert.False(t, ok)

	want := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	assert.Equal(t, want, revocations.revoked[s.SessionID])
}

func TestManager_Revoke_InvalidTokenIsNoop(t *testing.T) {
	revocations := newMockRevocations()
	m, _ := newTestManager(t, nil, nil, revocations)

	require.NoError(t, m.Revoke(context.Background(), "garbage"))
	assert.Empty(t, revocations.revoked)
}

func TestManager_Verify_StoreErrorFailsClosed(t *testing.T) {
	revocations := newMockRevocations()
	m, reasons := newTestManager(t, nil, nil, revocations)

	token, err := m.Create(testSession())
	require.NoError(t, err)

	revocations.isRevoked = func(context.Context, string) (bool, error) {
		return false, errors.New("connection refused")
	}

	_, ok := m.Verify(context.Background(), token)
	assert.False(t, ok)
	assert.Equal(t, []string{RejectStore}, *reasons)
}

func TestNewManager_Validation(t *testing.T) {
	codec, err := NewCodec(testKey(1), nil)
	require.NoError(t, err)

	_, err = NewManager(nil, ManagerConfig{Secret: []byte("s")}, nil, nil)
	assert.Error(t, err)

	_, err = NewManager(codec, ManagerConfig{}, nil, nil)
	assert.Error(t, err)

	m, err := NewManager(codec, ManagerConfig{Secret: []byte("s")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, m.TTL())
}

func TestManager_SetCookie_Attributes(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)
	rec := httptest.NewRecorder()

	m.SetCookie(rec, "opaque")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, "opaque", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestManager_ClearCookie(t *testing.T) {
	m, _ := newTestManager(t, nil, nil, nil)
	rec := httptest.NewRecorder()

	m.ClearCookie(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})
	assert.Equal(t, "abc", TokenFromRequest(req))
}
