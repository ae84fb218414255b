package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/hitoshi/calmate/internal/calendar"
	"github.com/hitoshi/calmate/internal/model"
)

// resolveWindow は時刻から対象イベントを探す前後の幅。
const resolveWindow = time.Hour

func (e *Executor) create(ctx context.Context, api CalendarAPI, cmd model.CalendarCommand) model.OperationResult {
	if cmd.Date == "" || cmd.EventTime == "" || cmd.EventTitle == "" {
		return model.Failure(model.ErrorKindValidation, "Missing required event information")
	}

	start, err := parseDateTime(cmd.Date, cmd.EventTime, e.loc)
	if err != nil {
		return model.Failure(model.ErrorKindValidation, "Invalid date/time format")
	}
	d, ok := parseDuration(cmd.Duration)
	if !ok {
		return model.Failure(model.ErrorKindValidation, "Event duration is too long")
	}
	end := start.Add(d)

	ev := &gcal.Event{
		Summary:     cmd.EventTitle,
		Location:    cmd.Location,
		Description: cmd.Notes,
		Start:       e.eventDateTime(start),
		End:         e.eventDateTime(end),
	}
	for _, email := range cmd.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}

	created, err := api.InsertEvent(ctx, ev, len(ev.Attendees) > 0)
	if err != nil {
		return upstreamFailure(err)
	}

	return model.OperationResult{
		Success:   true,
		EventID:   created.Id,
		EventLink: created.HtmlLink,
		Summary:   created.Summary,
		Start:     toEventTime(created.Start),
	}
}

func (e *Executor) reschedule(ctx context.Context, api CalendarAPI, cmd model.CalendarCommand) model.OperationResult {
	if cmd.NewTime == "" || cmd.Date == "" {
		return model.Failure(model.ErrorKindValidation, "New time is required for rescheduling")
	}
	newStart, err := parseDateTime(cmd.Date, cmd.NewTime, e.loc)
	if err != nil {
		return model.Failure(model.ErrorKindValidation, "Invalid new date/time format")
	}

	eventID := cmd.EventID
	if eventID == "" {
		if cmd.EventTitle == "" || cmd.OriginalTime == "" {
			return model.Failure(model.ErrorKindValidation, "Insufficient information to identify the event")
		}
		original, err := parseDateTime(cmd.Date, cmd.OriginalTime, e.loc)
		if err != nil {
			return model.Failure(model.ErrorKindValidation, "Invalid original date/time format")
		}
		found, err := findEvent(ctx, api, cmd.EventTitle, original)
		if err != nil {
			return upstreamFailure(err)
		}
		if found == nil {
			return model.Failure(model.ErrorKindNotFound, "Could not find the event to reschedule")
		}
		eventID = found.Id
	}

	current, err := api.GetEvent(ctx, eventID)
	if err != nil {
		return upstreamFailure(err)
	}
	origStart, okStart := eventTime(current.Start, e.loc)
	origEnd, okEnd := eventTime(current.End, e.loc)
	if !okStart || !okEnd {
		return model.Failure(model.ErrorKindUpstream, "Invalid original event times")
	}
	newEnd := newStart.Add(origEnd.Sub(origStart))

	patch := &gcal.Event{
		Start: e.eventDateTime(newStart),
		End:   e.eventDateTime(newEnd),
	}
	// 終日イベントを時刻指定に変える場合は date を明示的に消す
	if current.Start != nil && current.Start.DateTime == "" {
		patch.Start.NullFields = []string{"Date"}
		patch.End.NullFields = []string{"Date"}
	}

	updated, err := api.PatchEvent(ctx, eventID, patch)
	if err != nil {
		return upstreamFailure(err)
	}

	return model.OperationResult{
		Success:   true,
		EventID:   updated.Id,
		EventLink: updated.HtmlLink,
		Summary:   updated.Summary,
		NewStart:  toEventTime(updated.Start),
	}
}

func (e *Executor) cancel(ctx context.Context, api CalendarAPI, cmd model.CalendarCommand) model.OperationResult {
	eventID := cmd.EventID
	if eventID == "" {
		if cmd.EventTitle == "" || cmd.Date == "" || cmd.EventTime == "" {
			return model.Failure(model.ErrorKindValidation, "Insufficient information to identify the event")
		}
		at, err := parseDateTime(cmd.Date, cmd.EventTime, e.loc)
		if err != nil {
			return model.Failure(model.ErrorKindValidation, "Invalid date/time format")
		}
		found, err := findEvent(ctx, api, cmd.EventTitle, at)
		if err != nil {
			return upstreamFailure(err)
		}
		if found == nil {
			return model.Failure(model.ErrorKindNotFound, "Could not find the event to cancel")
		}
		eventID = found.Id
	}

	if err := api.DeleteEvent(ctx, eventID); err != nil {
		return upstreamFailure(err)
	}

	return model.OperationResult{
		Success: true,
		EventID: eventID,
		Message: "Event successfully cancelled",
	}
}

// findEvent はatの前後1時間でタイトルを含む最初のイベントを返す。見つからなければnil。
func findEvent(ctx context.Context, api CalendarAPI, title string, at time.Time) (*gcal.Event, error) {
	events, err := api.ListEvents(ctx, calendar.ListOptions{
		TimeMin: at.Add(-resolveWindow),
		TimeMax: at.Add(resolveWindow),
		Query:   title,
	})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(title))
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Summary), needle) {
			return ev, nil
		}
	}
	return nil, nil
}

// eventDateTime はイベントの開始・終了時刻を組み立てる。
// Localは Google が受け付けないため、IANA名を持つ場合のみ timeZone を付ける。
func (e *Executor) eventDateTime(t time.Time) *gcal.EventDateTime {
	edt := &gcal.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if name := e.loc.String(); name != "" && name != "Local" {
		edt.TimeZone = name
	}
	return edt
}

// eventTime はGoogleの時刻表現を解釈する。終日イベントはlocの0時として扱う。
func eventTime(edt *gcal.EventDateTime, loc *time.Location) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		return t, err == nil
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, loc)
		return t, err == nil
	}
	return time.Time{}, false
}

func toEventTime(edt *gcal.EventDateTime) *model.EventTime {
	if edt == nil {
		return nil
	}
	return &model.EventTime{DateTime: edt.DateTime, Date: edt.Date, TimeZone: edt.TimeZone}
}

func isNotFound(err error) bool {
	return errors.Is(err, calendar.ErrNotFound)
}
