package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/hitoshi/calmate/internal/calendar"
	"github.com/hitoshi/calmate/internal/middleware"
	"github.com/hitoshi/calmate/internal/model"
)

const (
	minYear = 1970
	maxYear = 9999
)

// CalendarHandler は年単位のイベント一覧を返すHTTPハンドラー。
type CalendarHandler struct {
	provider CalendarProvider
	loc      *time.Location
	now      func() time.Time
}

// NewCalendarHandler はCalendarHandlerを生成する。locがnilならtime.Local。
func NewCalendarHandler(provider CalendarProvider, loc *time.Location, now func() time.Time) *CalendarHandler {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarHandler{provider: provider, loc: loc, now: now}
}

// YearRange は指定年の1月1日 00:00:00 から12月31日 23:59:59 までを返す。
func YearRange(year int, loc *time.Location) model.DateRange {
	return model.DateRange{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, loc),
		End:   time.Date(year, time.December, 31, 23, 59, 59, 0, loc),
	}
}

// ListYear は指定年（省略時は今年）のイベントをすべて返す。
// GET /api/calendar?year=YYYY
func (h *CalendarHandler) ListYear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := middleware.SessionFromContext(ctx)
	if !ok {
		middleware.WriteJSONError(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	if !sess.HasCalendarAccess() {
		middleware.WriteJSONError(w, http.StatusUnauthorized, model.NewCalendarAuthRequiredError())
		return
	}

	year := h.now().In(h.loc).Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < minYear || y > maxYear {
			middleware.WriteJSONError(w, http.StatusBadRequest, model.NewInvalidRequestError("Invalid year"))
			return
		}
		year = y
	}

	api, err := h.provider.ForToken(ctx, sess.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build calendar client", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	rng := YearRange(year, h.loc)
	events, err := api.ListEvents(ctx, calendar.ListOptions{TimeMin: rng.Start, TimeMax: rng.End})
	if err != nil {
		slog.WarnContext(ctx, "failed to list calendar events",
			slog.Int("year", year),
			slog.String("error", err.Error()),
		)
		middleware.WriteJSONError(w, http.StatusInternalServerError, model.NewUpstreamError(calendar.ErrorMessage(err)))
		return
	}

	if events == nil {
		events = []*gcal.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
