// Package calendar はGoogle Calendar API v3 へのアクセスをユーザーのアクセストークン単位で提供する。
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// PrimaryCalendarID は認証ユーザーのメインカレンダーを指す。
const PrimaryCalendarID = "primary"

// ErrNotFound はイベントが存在しない（削除済みを含む）ことを示す。
var ErrNotFound = errors.New("calendar: event not found")

// ListOptions はイベント一覧の検索条件。
type ListOptions struct {
	TimeMin time.Time
	TimeMax time.Time
	Query   string // 全文検索（タイトル等）。空なら指定しない
}

// Client は1ユーザー分のカレンダー操作を行う。
type Client struct {
	svc        *gcal.Service
	calendarID string
}

// NewClient は既に認証済みのHTTPクライアントからClientを生成する。
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Client{svc: svc, calendarID: PrimaryCalendarID}, nil
}

// ListEvents は範囲内のイベントを開始時刻順に全ページ取得する。繰り返しイベントは展開される。
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) ([]*gcal.Event, error) {
	call := c.svc.Events.List(c.calendarID).
		TimeMin(opts.TimeMin.Format(time.RFC3339)).
		TimeMax(opts.TimeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}

	var events []*gcal.Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		events = append(events, page.Items...)
		return nil
	})
	if err != nil {
		return nil, wrapError("list events", err)
	}
	return events, nil
}

// GetEvent はイベントを1件取得する。
func (c *Client) GetEvent(ctx context.Context, eventID string) (*gcal.Event, error) {
	ev, err := c.svc.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("get event", err)
	}
	return ev, nil
}

// InsertEvent はイベントを作成する。notifyがtrueなら参加者に招待を送る。
func (c *Client) InsertEvent(ctx context.Context, ev *gcal.Event, notify bool) (*gcal.Event, error) {
	call := c.svc.Events.Insert(c.calendarID, ev).Context(ctx)
	if notify {
		call = call.SendUpdates("all")
	}
	created, err := call.Do()
	if err != nil {
		return nil, wrapError("insert event", err)
	}
	return created, nil
}

// PatchEvent はイベントの一部フィールドを更新し、参加者に通知する。
func (c *Client) PatchEvent(ctx context.Context, eventID string, patch *gcal.Event) (*gcal.Event, error) {
	updated, err := c.svc.Events.Patch(c.calendarID, eventID, patch).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return nil, wrapError("patch event", err)
	}
	return updated, nil
}

// DeleteEvent はイベントを削除し、参加者に通知する。
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if err := c.svc.Events.Delete(c.calendarID, eventID).SendUpdates("all").Context(ctx).Do(); err != nil {
		return wrapError("delete event", err)
	}
	return nil
}

// FreeBusy は範囲内の占有区間を返す。
func (c *Client) FreeBusy(ctx context.Context, timeMin, timeMax time.Time) ([]*gcal.TimePeriod, error) {
	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: c.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("query free/busy", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, nil
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("query free/busy: %s", cal.Errors[0].Reason)
	}
	return cal.Busy, nil
}

// Factory はアクセストークンごとにClientを生成する。
type Factory struct {
	base *http.Client
	opts []option.ClientOption
}

// NewFactory はFactoryを生成する。baseはSSRFガードやタイムアウトを備えた送信用クライアント。
// optsはテストでエンドポイントを差し替える場合などに使う。
func NewFactory(base *http.Client, opts ...option.ClientOption) *Factory {
	if base == nil {
		base = http.DefaultClient
	}
	return &Factory{base: base, opts: opts}
}

// ForToken はアクセストークンをBearerとして付与するClientを返す。
func (f *Factory) ForToken(ctx context.Context, accessToken string) (*Client, error) {
	if accessToken == "" {
		return nil, errors.New("calendar: access token is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = f.base.Timeout

	return NewClient(ctx, httpClient, f.opts...)
}

// ErrorMessage はプロバイダーのエラーメッセージを取り出す。取れない場合はエラー文字列を返す。
func ErrorMessage(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}
	return err.Error()
}

func wrapError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
