package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/hitoshi/calmate/internal/calendar"
	"github.com/hitoshi/calmate/internal/executor"
	"github.com/hitoshi/calmate/internal/middleware"
	"github.com/hitoshi/calmate/internal/model"
	"github.com/hitoshi/calmate/internal/session"
)

// --- モック定義 ---

var errNotStubbed = errors.New("not stubbed")

type mockAuthService struct {
	getLoginURLFn     func(state string) string
	handleCallbackFn  func(ctx context.Context, code string) (string, *model.UserSession, error)
	refreshOrResignFn func(ctx context.Context, token string) (string, bool)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (string, *model.UserSession, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return "", nil, errNotStubbed
}

func (m *mockAuthService) RefreshOrResign(ctx context.Context, token string) (string, bool) {
	if m.refreshOrResignFn != nil {
		return m.refreshOrResignFn(ctx, token)
	}
	return "", false
}

type mockCookies struct {
	set     []string
	cleared int
}

func (m *mockCookies) SetCookie(w http.ResponseWriter, token string) {
	m.set = append(m.set, token)
	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Value: token, Path: "/"})
}

func (m *mockCookies) ClearCookie(w http.ResponseWriter) {
	m.cleared++
	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Value: "", Path: "/", MaxAge: -1})
}

type mockLoginRecorder struct {
	outcomes []string
}

func (m *mockLoginRecorder) RecordOAuthLogin(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

// mockSessions はゲート用のセッション検証モック。"valid" と "no-calendar" のみ受け付ける。
type mockSessions struct {
	revoked []string
}

func (m *mockSessions) Verify(_ context.Context, token string) (*model.UserSession, bool) {
	switch token {
	case "valid":
		return testSession(), true
	case "no-calendar":
		s := testSession()
		s.Token = ""
		return s, true
	}
	return nil, false
}

func (m *mockSessions) Revoke(_ context.Context, token string) error {
	m.revoked = append(m.revoked, token)
	return nil
}

func (m *mockSessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: session.CookieName, Value: "", Path: "/", MaxAge: -1})
}

type mockCalendar struct {
	listEventsFn func(ctx context.Context, opts calendar.ListOptions) ([]*gcal.Event, error)
}

func (m *mockCalendar) ListEvents(ctx context.Context, opts calendar.ListOptions) ([]*gcal.Event, error) {
	if m.listEventsFn != nil {
		return m.listEventsFn(ctx, opts)
	}
	return nil, errNotStubbed
}

func (m *mockCalendar) GetEvent(context.Context, string) (*gcal.Event, error) {
	return nil, errNotStubbed
}

func (m *mockCalendar) InsertEvent(context.Context, *gcal.Event, bool) (*gcal.Event, error) {
	return nil, errNotStubbed
}

func (m *mockCalendar) PatchEvent(context.Context, string, *gcal.Event) (*gcal.Event, error) {
	return nil, errNotStubbed
}

func (m *mockCalendar) DeleteEvent(context.Context, string) error {
	return errNotStubbed
}

func (m *mockCalendar) FreeBusy(context.Context, time.Time, time.Time) ([]*gcal.TimePeriod, error) {
	return nil, errNotStubbed
}

type mockProvider struct {
	api      executor.CalendarAPI
	err      error
	gotToken string
}

func (m *mockProvider) ForToken(_ context.Context, accessToken string) (executor.CalendarAPI, error) {
	m.gotToken = accessToken
	if m.err != nil {
		return nil, m.err
	}
	return m.api, nil
}

type mockInterpreter struct {
	interpretFn func(ctx context.Context, message string, now time.Time) model.LLMResponse
	calls       int
}

func (m *mockInterpreter) Interpret(ctx context.Context, message string, now time.Time) model.LLMResponse {
	m.calls++
	if m.interpretFn != nil {
		return m.interpretFn(ctx, message, now)
	}
	return model.LLMResponse{Type: model.LLMResponseError, Message: "not stubbed"}
}

type mockExecutor struct {
	executeBatchFn func(ctx context.Context, api executor.CalendarAPI, cmds []model.CalendarCommand) model.BatchResult
}

func (m *mockExecutor) ExecuteBatch(ctx context.Context, api executor.CalendarAPI, cmds []model.CalendarCommand) model.BatchResult {
	if m.executeBatchFn != nil {
		return m.executeBatchFn(ctx, api, cmds)
	}
	return model.BatchResult{}
}

func testSession() *model.UserSession {
	return &model.UserSession{
		ID:           "user-1",
		Email:        "user@example.com",
		Name:         "Test User",
		Picture:      "https://example.com/p.png",
		Token:        "access-token",
		RefreshToken: "refresh-token",
		SessionID:    "jti-1",
	}
}

func withSession(r *http.Request, s *model.UserSession) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), s))
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)
}
