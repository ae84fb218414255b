package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/calmate/internal/model"
)

func requestAs(userID, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/ai", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	if userID != "" {
		req = req.WithContext(ContextWithSession(req.Context(), &model.UserSession{ID: userID}))
	}
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 20)

	if float64(cfg.APIRate) != 2 {
		t.Errorf("APIRate = %v, want 2", cfg.APIRate)
	}
	if cfg.APIBurst != 120 {
		t.Errorf("APIBurst = %d, want 120", cfg.APIBurst)
	}
	if cfg.AIBurst != 20 {
		t.Errorf("AIBurst = %d, want 20", cfg.AIBurst)
	}

	zero := NewRateLimiterConfig(0, -5)
	if zero.APIBurst != 1 || zero.AIBurst != 1 {
		t.Errorf("non-positive limits should clamp to 1, got %d/%d", zero.APIBurst, zero.AIBurst)
	}
}

func TestRateLimiter_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{APIRate: 1, APIBurst: 5, AIRate: 1, AIBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.APIMiddleware()(okHandler())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("user-1", ""))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{APIRate: 0.5, APIBurst: 2, AIRate: 1, AIBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.APIMiddleware()(okHandler())
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-1", ""))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-1", ""))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry != 2 {
		t.Errorf("Retry-After = %q, want %q", w.Header().Get("Retry-After"), "2")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimited)
	}
}

func TestRateLimiter_UsersAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{APIRate: 0.01, APIBurst: 1, AIRate: 1, AIBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.APIMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestAs("user-1", ""))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("user-2", ""))
	if w.Code != http.StatusOK {
		t.Errorf("user-2 status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.APILimiterCount(); got != 2 {
		t.Errorf("APILimiterCount() = %d, want 2", got)
	}
}

func TestRateLimiter_AITierIndependentOfAPITier(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{APIRate: 10, APIBurst: 10, AIRate: 0.01, AIBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	chain := rl.APIMiddleware()(rl.AIMiddleware()(okHandler()))
	apiOnly := rl.APIMiddleware()(okHandler())

	first := httptest.NewRecorder()
	chain.ServeHTTP(first, requestAs("user-1", ""))
	if first.Code != http.StatusOK {
		t.Fatalf("first AI request status = %d, want %d", first.Code, http.StatusOK)
	}

	second := httptest.NewRecorder()
	chain.ServeHTTP(second, requestAs("user-1", ""))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second AI request status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}

	other := httptest.NewRecorder()
	apiOnly.ServeHTTP(other, requestAs("user-1", ""))
	if other.Code != http.StatusOK {
		t.Errorf("API request status = %d, want %d", other.Code, http.StatusOK)
	}
	if got := rl.AILimiterCount(); got != 1 {
		t.Errorf("AILimiterCount() = %d, want 1", got)
	}
}

func TestRateLimiter_AnonymousKeyedByRemoteIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{APIRate: 0.01, APIBurst: 1, AIRate: 1, AIBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	handler := rl.APIMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestAs("", "10.0.0.1:1234"))

	sameIP := httptest.NewRecorder()
	handler.ServeHTTP(sameIP, requestAs("", "10.0.0.1:5678"))
	if sameIP.Code != http.StatusTooManyRequests {
		t.Errorf("same IP status = %d, want %d", sameIP.Code, http.StatusTooManyRequests)
	}

	otherIP := httptest.NewRecorder()
	handler.ServeHTTP(otherIP, requestAs("", "10.0.0.2:1234"))
	if otherIP.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want %d", otherIP.Code, http.StatusOK)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{APIRate: 1, APIBurst: 1, AIRate: 1, AIBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	rl.APIMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-1", ""))
	rl.AIMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("user-1", ""))

	rl.cleanup(time.Now())
	if rl.APILimiterCount() != 1 {
		t.Errorf("fresh entry should survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.APILimiterCount() != 0 || rl.AILimiterCount() != 0 {
		t.Errorf("stale entries should be removed, got api=%d ai=%d", rl.APILimiterCount(), rl.AILimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}
