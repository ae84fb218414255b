package executor

import (
	"fmt"
	"strings"

	"github.com/hitoshi/calmate/internal/model"
)

// Sentence はコマンド1件の結果を利用者向けの1文にする。
func Sentence(cmd model.CalendarCommand, res model.OperationResult) string {
	reason := strings.TrimRight(res.Error, ".")

	switch cmd.Action {
	case model.ActionCreate:
		if res.Success {
			return fmt.Sprintf(`Your event "%s" was successfully created.`, firstNonEmpty(res.Summary, cmd.EventTitle))
		}
		return fmt.Sprintf(`Your request to create the event "%s" failed: %s.`, cmd.EventTitle, reason)
	case model.ActionReschedule:
		if res.Success {
			return fmt.Sprintf(`Your event "%s" was successfully rescheduled.`, firstNonEmpty(res.Summary, cmd.EventTitle))
		}
		return fmt.Sprintf(`Your request to reschedule the event "%s" failed: %s.`, cmd.EventTitle, reason)
	case model.ActionCancel:
		if res.Success {
			return "Your event was successfully cancelled."
		}
		return fmt.Sprintf(`Your request to cancel the event "%s" failed: %s.`, cmd.EventTitle, reason)
	case model.ActionQuery:
		if !res.Success {
			return fmt.Sprintf("Your query failed: %s.", reason)
		}
		return querySentence(cmd.QueryType, res)
	case model.ActionChat:
		return res.Message
	default:
		return fmt.Sprintf("Unknown action: %s.", cmd.Action)
	}
}

func querySentence(qt model.QueryType, res model.OperationResult) string {
	if qt == model.QueryFreeSlots {
		if n := len(res.FreeSlots); n > 0 {
			return fmt.Sprintf("I found %d free slot(s) in the specified date range.", n)
		}
		return "I did not find any free slots in the specified date range."
	}

	n := len(res.Events)
	if qt == model.QueryBusyTimes {
		n = len(res.BusyTimes)
	}
	if n > 0 {
		return fmt.Sprintf("I found %d event(s) in the specified date range.", n)
	}
	return "I did not find any events in the specified date range."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
