// Package executor は構造化カレンダーコマンドをGoogle Calendarに対して実行する。
//
// 失敗はエラーとして返さず、ErrorKind付きのOperationResultに変換する。
// これによりバッチ内の1コマンドの失敗が後続コマンドを止めない。
package executor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/hitoshi/calmate/internal/calendar"
	"github.com/hitoshi/calmate/internal/model"
	"github.com/hitoshi/calmate/internal/security"
)

const defaultChatResponse = "How can I assist you with your calendar?"

// CalendarAPI はエグゼキュータが使うカレンダー操作。calendar.Client が満たす。
type CalendarAPI interface {
	ListEvents(ctx context.Context, opts calendar.ListOptions) ([]*gcal.Event, error)
	GetEvent(ctx context.Context, eventID string) (*gcal.Event, error)
	InsertEvent(ctx context.Context, ev *gcal.Event, notify bool) (*gcal.Event, error)
	PatchEvent(ctx context.Context, eventID string, patch *gcal.Event) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	FreeBusy(ctx context.Context, timeMin, timeMax time.Time) ([]*gcal.TimePeriod, error)
}

// Recorder はコマンドの実行結果を記録する。metrics.Collector が満たす。
type Recorder interface {
	ObserveCommand(action, outcome string)
}

// Config はExecutorの設定。
type Config struct {
	// Location は日時指定を解釈するタイムゾーン。nilならtime.Local。
	Location *time.Location
	// Sanitizer はchat返答からマークアップを除去する。nilなら素通し。
	Sanitizer security.TextSanitizer
	// Recorder はnil可。
	Recorder Recorder
	// Now はテスト用の時計。nilならtime.Now。
	Now func() time.Time
}

// Executor はコマンドを実行する。状態を持たず並行利用できる。
type Executor struct {
	loc       *time.Location
	sanitizer security.TextSanitizer
	recorder  Recorder
	now       func() time.Time
}

// New はExecutorを生成する。
func New(cfg Config) *Executor {
	e := &Executor{
		loc:       cfg.Location,
		sanitizer: cfg.Sanitizer,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Execute はコマンド1件を実行する。失敗はOperationResultのErrorKindで表す。
func (e *Executor) Execute(ctx context.Context, api CalendarAPI, cmd model.CalendarCommand) model.OperationResult {
	var res model.OperationResult

	switch cmd.Action {
	case model.ActionCreate:
		res = e.create(ctx, api, cmd)
	case model.ActionReschedule:
		res = e.reschedule(ctx, api, cmd)
	case model.ActionCancel:
		res = e.cancel(ctx, api, cmd)
	case model.ActionQuery:
		res = e.query(ctx, api, cmd)
	case model.ActionChat:
		res = e.chat(cmd)
	default:
		res = model.Failure(model.ErrorKindUnsupported, "Unknown calendar action requested")
	}

	outcome := "success"
	if !res.Success {
		outcome = string(res.ErrorKind)
	}
	if e.recorder != nil {
		e.recorder.ObserveCommand(string(cmd.Action), outcome)
	}
	slog.DebugContext(ctx, "command executed",
		slog.String("action", string(cmd.Action)),
		slog.String("outcome", outcome),
	)

	return res
}

// ExecuteBatch はコマンドを入力順に1件ずつ実行する。
// 後続コマンドは先行コマンドが作ったカレンダー状態を前提にできるため、並行実行はしない。
func (e *Executor) ExecuteBatch(ctx context.Context, api CalendarAPI, cmds []model.CalendarCommand) model.BatchResult {
	batch := model.BatchResult{Outcomes: make([]model.CommandOutcome, 0, len(cmds))}
	sentences := make([]string, 0, len(cmds))

	for _, cmd := range cmds {
		res := e.Execute(ctx, api, cmd)
		batch.Outcomes = append(batch.Outcomes, model.CommandOutcome{Action: cmd.Action, Result: res})
		sentences = append(sentences, Sentence(cmd, res))
	}

	batch.NLResponse = strings.Join(sentences, " ")
	return batch
}

func (e *Executor) chat(cmd model.CalendarCommand) model.OperationResult {
	msg := cmd.Response
	if e.sanitizer != nil {
		msg = e.sanitizer.Sanitize(msg)
	}
	if strings.TrimSpace(msg) == "" {
		msg = defaultChatResponse
	}
	return model.OperationResult{Success: true, Message: msg}
}

// upstreamFailure はカレンダーAPIのエラーを結果に変換する。
func upstreamFailure(err error) model.OperationResult {
	kind := model.ErrorKindUpstream
	if isNotFound(err) {
		kind = model.ErrorKindNotFound
	}
	return model.Failure(kind, calendar.ErrorMessage(err))
}
