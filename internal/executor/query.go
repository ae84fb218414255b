package executor

import (
	"context"
	"time"

	gcal "google.golang.org/api/calendar/v3"

	"github.com/hitoshi/calmate/internal/calendar"
	"github.com/hitoshi/calmate/internal/daterange"
	"github.com/hitoshi/calmate/internal/model"
	"github.com/hitoshi/calmate/internal/security"
)

// maxQueryRange は問い合わせで扱う期間の上限。
const maxQueryRange = 366 * 24 * time.Hour

func (e *Executor) query(ctx context.Context, api CalendarAPI, cmd model.CalendarCommand) model.OperationResult {
	if cmd.QueryType == "" {
		return model.Failure(model.ErrorKindValidation, "Query type is required")
	}

	expr := cmd.DateRange
	if expr == "" {
		expr = "today"
	}
	dr := daterange.Resolve(expr, e.now().In(e.loc))
	if dr.End.Sub(dr.Start) > maxQueryRange {
		return model.Failure(model.ErrorKindValidation, "Date range is too long")
	}

	switch cmd.QueryType {
	case model.QueryFreeSlots:
		return e.freeSlots(ctx, api, dr)
	case model.QueryBusyTimes:
		return busyTimes(ctx, api, dr)
	case model.QueryEventDetails:
		return eventDetails(ctx, api, dr, cmd.EventTitle)
	default:
		return model.Failure(model.ErrorKindUnsupported, "Unknown query type")
	}
}

func (e *Executor) freeSlots(ctx context.Context, api CalendarAPI, dr model.DateRange) model.OperationResult {
	if !dr.End.After(dr.Start) {
		return model.Failure(model.ErrorKindValidation, "Invalid date range")
	}

	periods, err := api.FreeBusy(ctx, dr.Start, dr.End)
	if err != nil {
		return upstreamFailure(err)
	}

	busy := make([]Interval, 0, len(periods))
	for _, p := range periods {
		start, err1 := time.Parse(time.RFC3339, p.Start)
		end, err2 := time.Parse(time.RFC3339, p.End)
		if err1 != nil || err2 != nil {
			continue
		}
		busy = append(busy, Interval{Start: start.In(e.loc), End: end.In(e.loc)})
	}

	return model.OperationResult{
		Success:   true,
		FreeSlots: ComputeFreeSlots(dr.Start, dr.End, busy),
		DateRange: &dr,
	}
}

func busyTimes(ctx context.Context, api CalendarAPI, dr model.DateRange) model.OperationResult {
	events, err := api.ListEvents(ctx, calendar.ListOptions{TimeMin: dr.Start, TimeMax: dr.End})
	if err != nil {
		return upstreamFailure(err)
	}

	busy := make([]model.BusyTime, 0, len(events))
	for _, ev := range events {
		busy = append(busy, model.BusyTime{
			Summary: ev.Summary,
			Start:   timeString(ev.Start),
			End:     timeString(ev.End),
			ID:      ev.Id,
		})
	}

	return model.OperationResult{Success: true, BusyTimes: busy, DateRange: &dr}
}

func eventDetails(ctx context.Context, api CalendarAPI, dr model.DateRange, title string) model.OperationResult {
	events, err := api.ListEvents(ctx, calendar.ListOptions{TimeMin: dr.Start, TimeMax: dr.End, Query: title})
	if err != nil {
		return upstreamFailure(err)
	}
	if len(events) == 0 {
		return model.Failure(model.ErrorKindNotFound, "No events were found in the specified date range.")
	}

	details := make([]model.EventDetail, 0, len(events))
	for _, ev := range events {
		details = append(details, toEventDetail(ev))
	}

	return model.OperationResult{Success: true, Events: details, DateRange: &dr}
}

func toEventDetail(ev *gcal.Event) model.EventDetail {
	d := model.EventDetail{
		ID:          ev.Id,
		Summary:     ev.Summary,
		Description: security.HTMLToText(ev.Description),
		Location:    ev.Location,
		HTMLLink:    ev.HtmlLink,
	}
	if t := toEventTime(ev.Start); t != nil {
		d.Start = *t
	}
	if t := toEventTime(ev.End); t != nil {
		d.End = *t
	}
	if ev.Organizer != nil {
		d.Organizer = ev.Organizer.Email
	}
	for _, a := range ev.Attendees {
		d.Attendees = append(d.Attendees, model.Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return d
}

func timeString(edt *gcal.EventDateTime) string {
	if edt == nil {
		return ""
	}
	if edt.DateTime != "" {
		return edt.DateTime
	}
	return edt.Date
}
