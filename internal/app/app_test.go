package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/calmate/internal/config"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "test-client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "test-client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/login/auth/google")
	t.Setenv("JWT_SECRET", "test-jwt-secret-32bytes-long!!!!")
	t.Setenv("ENCRYPTION_KEY", testEncryptionKey)
	t.Setenv("LLM_API_KEY", "test-llm-key")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_SETTINGS_FILE", "")
	t.Setenv("OUTBOUND_GUARD", "")
	t.Setenv("APP_ENV", "development")
	t.Setenv("BASE_URL", "http://localhost:8080")
}

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URL",
		"JWT_SECRET", "ENCRYPTION_KEY", "LLM_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	setTestEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "test-client-id", cfg.GoogleClientID)

	slog.Default().Info("init test")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "raw: %s", buf.String())
	assert.Equal(t, "init test", entry["msg"])
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	assert.Error(t, Run(&buf, []string{"serve"}))
}

func TestRun_WorkerWithoutDatabase_ReturnsError(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"worker"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestRun_MigrateWithoutDatabase_ReturnsError(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestNewServer_InMemoryRevocations(t *testing.T) {
	srv := newTestServer(t, loadTestConfig(t))

	assert.Nil(t, srv.db)
	assert.NotNil(t, srv.memory)
}

func TestNewServer_HealthAndGate(t *testing.T) {
	srv := newTestServer(t, loadTestConfig(t))

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "forged"})
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNewServer_LoginRedirectsToGoogle(t *testing.T) {
	srv := newTestServer(t, loadTestConfig(t))

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/auth/google", nil))

	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "https://accounts.google.com/"), location)
	assert.Contains(t, location, "access_type=offline")
}

func TestNewServer_MetricsExposed(t *testing.T) {
	srv := newTestServer(t, loadTestConfig(t))

	// ゲートの拒否がカウンターに反映されること
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "forged"})
	srv.Handler.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	srv.Metrics.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "calmate_session_rejections_total")
	assert.Contains(t, body, "calmate_http_status_total")
}

func TestNewServer_RejectsInsecureLLMBaseURL(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.OutboundGuard = true
	cfg.LLMBaseURL = "http://127.0.0.1:11434/v1/"

	_, err := NewServer(context.Background(), cfg, prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_BASE_URL")
}

func TestNewServer_MissingLLMSettingsFile(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.LLMSettingsFile = "/nonexistent/llm.yaml"

	_, err := NewServer(context.Background(), cfg, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://u***@...", maskDatabaseURL("postgres://user:secret@db:5432/calmate"))
	assert.Equal(t, "***", maskDatabaseURL("short"))
}
