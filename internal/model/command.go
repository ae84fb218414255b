package model

import "time"

// Action はカレンダーコマンドの種別を表す。
type Action string

const (
	ActionCreate     Action = "create"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
	ActionQuery      Action = "query"
	ActionChat       Action = "chat"
)

// QueryType はqueryアクションの問い合わせ種別を表す。
type QueryType string

const (
	QueryFreeSlots    QueryType = "free_slots"
	QueryBusyTimes    QueryType = "busy_times"
	QueryEventDetails QueryType = "event_details"
)

// CalendarCommand は自然言語から抽出された構造化コマンド。
// 必須フィールドはアクションごとに異なり、欠落は実行時のバリデーションエラーとして扱う。
type CalendarCommand struct {
	Action       Action    `json:"action"`
	EventTitle   string    `json:"event_title,omitempty"`
	Date         string    `json:"date,omitempty"`          // YYYY-MM-DD
	EventTime    string    `json:"event_time,omitempty"`    // H:MM AM/PM
	NewTime      string    `json:"new_time,omitempty"`      // H:MM AM/PM
	OriginalTime string    `json:"original_time,omitempty"` // H:MM AM/PM
	Duration     string    `json:"duration,omitempty"`      // "2 hours" など
	Location     string    `json:"location,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Attendees    []string  `json:"attendees,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
	DateRange    string    `json:"date_range,omitempty"`
	QueryType    QueryType `json:"query_type,omitempty"`
	Response     string    `json:"response,omitempty"` // chatアクションの返答
}

// LLMResponseType はインタープリタ出力の種別を表す。
type LLMResponseType string

const (
	LLMResponseJSON  LLMResponseType = "json"
	LLMResponseChat  LLMResponseType = "chat"
	LLMResponseError LLMResponseType = "error"
)

// LLMResponse はインタープリタの出力。常に整形済みで返され、例外を伝播しない。
type LLMResponse struct {
	Type     LLMResponseType
	Commands []CalendarCommand // json, chat のとき1件以上
	Message  string            // error のときのメッセージ
}

// ErrorKind はコマンド実行失敗の分類。呼び出し側は文字列ではなくこの値で分岐する。
type ErrorKind string

const (
	ErrorKindValidation  ErrorKind = "validation"
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindUpstream    ErrorKind = "upstream"
	ErrorKindUnsupported ErrorKind = "unsupported"
)

// EventTime はカレンダーイベントの開始・終了時刻。終日イベントはDateのみを持つ。
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// DateRange は解決済みの絶対時間範囲。
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeSlot は空き時間帯。Durationは分単位。
type FreeSlot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration"`
}

// BusyTime は範囲内の予定1件分の占有時間。
type BusyTime struct {
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
	ID      string `json:"id"`
}

// Attendee はイベントの参加者。
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName,omitempty"`
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// EventDetail はevent_details問い合わせで返すイベント詳細。
type EventDetail struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Organizer   string     `json:"organizer,omitempty"`
	HTMLLink    string     `json:"htmlLink,omitempty"`
}

// OperationResult は1コマンドの実行結果。
type OperationResult struct {
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	ErrorKind ErrorKind     `json:"errorKind,omitempty"`
	EventID   string        `json:"eventId,omitempty"`
	EventLink string        `json:"eventLink,omitempty"`
	Summary   string        `json:"summary,omitempty"`
	Start     *EventTime    `json:"start,omitempty"`
	NewStart  *EventTime    `json:"newStart,omitempty"`
	FreeSlots []FreeSlot    `json:"freeSlots,omitempty"`
	BusyTimes []BusyTime    `json:"busyTimes,omitempty"`
	DateRange *DateRange    `json:"dateRange,omitempty"`
	Message   string        `json:"message,omitempty"`
	Events    []EventDetail `json:"events,omitempty"`
}

// Failure は失敗結果を生成する。
func Failure(kind ErrorKind, message string) OperationResult {
	return OperationResult{Success: false, Error: message, ErrorKind: kind}
}

// CommandOutcome はバッチ内の1コマンドの実行記録。
type CommandOutcome struct {
	Action Action          `json:"action"`
	Result OperationResult `json:"result"`
}

// BatchResult は複数コマンドを順次実行した結果。Outcomes は入力順を保つ。
type BatchResult struct {
	Outcomes   []CommandOutcome
	NLResponse string
}
