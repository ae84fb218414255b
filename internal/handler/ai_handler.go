package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/calmate/internal/executor"
	"github.com/hitoshi/calmate/internal/middleware"
	"github.com/hitoshi/calmate/internal/model"
)

// maxAIRequestBytes はPOST /api/ai のボディ上限。
const maxAIRequestBytes = 16 << 10

// Interpreter は自然言語をコマンドに変換する。interpreter.Interpreter が満たす。
type Interpreter interface {
	Interpret(ctx context.Context, message string, now time.Time) model.LLMResponse
}

// Executor はコマンド列を順次実行する。executor.Executor が満たす。
type Executor interface {
	ExecuteBatch(ctx context.Context, api executor.CalendarAPI, cmds []model.CalendarCommand) model.BatchResult
}

// AIHandler は自然言語リクエストを解釈してカレンダー操作を行うHTTPハンドラー。
type AIHandler struct {
	interpreter Interpreter
	executor    Executor
	provider    CalendarProvider
	loc         *time.Location
	now         func() time.Time
}

// NewAIHandler はAIHandlerを生成する。
func NewAIHandler(interp Interpreter, exec Executor, provider CalendarProvider, loc *time.Location, now func() time.Time) *AIHandler {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &AIHandler{
		interpreter: interp,
		executor:    exec,
		provider:    provider,
		loc:         loc,
		now:         now,
	}
}

type aiRequest struct {
	Message string `json:"message"`
}

// aiResponse はPOST /api/ai の成功レスポンス。
type aiResponse struct {
	Type         string                  `json:"type"`
	Results      []model.CommandOutcome  `json:"results"`
	NLResponse   string                  `json:"nlResponse"`
	OriginalData []model.CalendarCommand `json:"original_data"`
}

type errorOnly struct {
	Error string `json:"error"`
}

// Handle は自然言語のメッセージを解釈し、得られたコマンドを順に実行する。
// POST /api/ai {"message": "..."}
func (h *AIHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req aiRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAIRequestBytes))
	if err := dec.Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorOnly{Error: "Invalid request format"})
		return
	}

	sess, ok := middleware.SessionFromContext(ctx)
	if !ok || !sess.HasCalendarAccess() {
		middleware.WriteJSONError(w, http.StatusUnauthorized, model.NewCalendarAuthRequiredError())
		return
	}

	llm := h.interpreter.Interpret(ctx, req.Message, h.now().In(h.loc))
	if llm.Type == model.LLMResponseError {
		msg := llm.Message
		if msg == "" {
			msg = "Error processing your request"
		}
		slog.WarnContext(ctx, "interpreter returned error", slog.String("error", msg))
		writeJSON(w, http.StatusInternalServerError, errorOnly{Error: msg})
		return
	}

	api, err := h.provider.ForToken(ctx, sess.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build calendar client", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorOnly{
			Error: fmt.Sprintf("Error processing calendar request: %s", err.Error()),
		})
		return
	}

	batch := h.executor.ExecuteBatch(ctx, api, llm.Commands)

	slog.InfoContext(ctx, "calendar request processed",
		slog.Int("commands", len(llm.Commands)),
		slog.String("response_type", string(llm.Type)),
	)

	results := batch.Outcomes
	if results == nil {
		results = []model.CommandOutcome{}
	}
	writeJSON(w, http.StatusOK, aiResponse{
		Type:         "multi",
		Results:      results,
		NLResponse:   batch.NLResponse,
		OriginalData: llm.Commands,
	})
}
