// Package interpreter は自然文をLLMで構造化カレンダーコマンドに変換する。
package interpreter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/calmate/internal/llm"
	"github.com/hitoshi/calmate/internal/model"
)

const emptyResponseMessage = "Empty response from LLM"

// ChatCompleter はchat completionsを実行する。llm.Client が満たす。
type ChatCompleter interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Recorder はLLM呼び出しの結果と所要時間を記録する。metrics.Collector が満たす。
type Recorder interface {
	ObserveLLM(outcome string, d time.Duration)
}

// Interpreter は自然文をLLMResponseに変換する。
type Interpreter struct {
	completer ChatCompleter
	recorder  Recorder
}

// New はInterpreterを生成する。recorderはnil可。
func New(completer ChatCompleter, recorder Recorder) *Interpreter {
	return &Interpreter{completer: completer, recorder: recorder}
}

// Interpret はmessageをLLMに送り、結果を常に整形済みのLLMResponseとして返す。
// 通信・プロバイダーの失敗は error 種別のレスポンスになり、panicや例外として伝播しない。
func (i *Interpreter) Interpret(ctx context.Context, message string, now time.Time) model.LLMResponse {
	start := time.Now()

	raw, err := i.completer.Complete(ctx, []llm.Message{
		{Role: "system", Content: SystemPrompt(now)},
		{Role: "user", Content: message},
	})
	if err != nil {
		i.observe("error", start)
		if errors.Is(err, llm.ErrEmptyResponse) {
			return model.LLMResponse{Type: model.LLMResponseError, Message: emptyResponseMessage}
		}
		slog.WarnContext(ctx, "llm request failed", slog.String("error", err.Error()))
		return model.LLMResponse{Type: model.LLMResponseError, Message: err.Error()}
	}

	resp := Parse(raw)
	i.observe(string(resp.Type), start)
	if resp.Type == model.LLMResponseChat {
		slog.DebugContext(ctx, "llm output was not structured; treating as chat")
	}
	return resp
}

func (i *Interpreter) observe(outcome string, start time.Time) {
	if i.recorder != nil {
		i.recorder.ObserveLLM(outcome, time.Since(start))
	}
}
