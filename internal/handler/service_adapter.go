package handler

import (
	"context"

	"github.com/hitoshi/calmate/internal/calendar"
	"github.com/hitoshi/calmate/internal/executor"
)

// CalendarProvider はユーザーのアクセストークンからカレンダーAPIを得る。
type CalendarProvider interface {
	ForToken(ctx context.Context, accessToken string) (executor.CalendarAPI, error)
}

// CalendarFactoryAdapter は calendar.Factory を CalendarProvider に適合させるアダプタ。
type CalendarFactoryAdapter struct {
	factory *calendar.Factory
}

// NewCalendarFactoryAdapter はCalendarFactoryAdapterを生成する。
func NewCalendarFactoryAdapter(factory *calendar.Factory) *CalendarFactoryAdapter {
	return &CalendarFactoryAdapter{factory: factory}
}

// ForToken はトークン付きのカレンダークライアントを返す。
func (a *CalendarFactoryAdapter) ForToken(ctx context.Context, accessToken string) (executor.CalendarAPI, error) {
	client, err := a.factory.ForToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return client, nil
}
