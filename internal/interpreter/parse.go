package interpreter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hitoshi/calmate/internal/model"
)

var fencedBlockPattern = regexp.MustCompile("```(?:json)?[ \\t]*\\r?\\n([\\s\\S]*?)\\r?\\n[ \\t]*```")

// Parse はモデル出力をLLMResponseに変換する。
// 直接のJSON → フェンス付きコードブロック → 最初の { から最後の } の範囲 の順に試し、
// いずれも失敗した場合は出力全体をchatコマンドとして包む。
func Parse(raw string) model.LLMResponse {
	text := strings.TrimSpace(raw)
	if text == "" {
		return model.LLMResponse{Type: model.LLMResponseError, Message: emptyResponseMessage}
	}

	if cmds, ok := decodeCommands(text); ok {
		return model.LLMResponse{Type: model.LLMResponseJSON, Commands: cmds}
	}

	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil {
		if cmds, ok := decodeCommands(strings.TrimSpace(m[1])); ok {
			return model.LLMResponse{Type: model.LLMResponseJSON, Commands: cmds}
		}
	}

	if span, ok := delimitedSpan(text); ok {
		if cmds, ok := decodeCommands(span); ok {
			return model.LLMResponse{Type: model.LLMResponseJSON, Commands: cmds}
		}
	}

	return model.LLMResponse{
		Type:     model.LLMResponseChat,
		Commands: []model.CalendarCommand{{Action: model.ActionChat, Response: text}},
	}
}

// delimitedSpan は最初の開き括弧から対応する種類の最後の閉じ括弧までを返す。
// 配列が先に始まる場合は [..] を、そうでなければ {..} を使う。
func delimitedSpan(text string) (string, bool) {
	obj := strings.IndexByte(text, '{')
	arr := strings.IndexByte(text, '[')

	if arr >= 0 && (obj < 0 || arr < obj) {
		if end := strings.LastIndexByte(text, ']'); end > arr {
			return text[arr : end+1], true
		}
	}
	if obj >= 0 {
		if end := strings.LastIndexByte(text, '}'); end > obj {
			return text[obj : end+1], true
		}
	}
	return "", false
}

// decodeCommands はJSONオブジェクトまたはオブジェクト配列をコマンド列に変換する。
// スカラーや空配列はパース失敗として扱う。
func decodeCommands(text string) ([]model.CalendarCommand, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}

	switch t := v.(type) {
	case map[string]any:
		return []model.CalendarCommand{commandFromMap(t)}, true
	case []any:
		var cmds []model.CalendarCommand
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				cmds = append(cmds, commandFromMap(obj))
			}
		}
		return cmds, len(cmds) > 0
	default:
		return nil, false
	}
}

// commandFromMap はモデルが返した型の揺れ（数値の時刻、カンマ区切りの参加者など）を吸収する。
func commandFromMap(m map[string]any) model.CalendarCommand {
	return model.CalendarCommand{
		Action:       model.Action(strings.ToLower(stringField(m, "action"))),
		EventTitle:   stringField(m, "event_title"),
		Date:         stringField(m, "date"),
		EventTime:    stringField(m, "event_time"),
		NewTime:      stringField(m, "new_time"),
		OriginalTime: stringField(m, "original_time"),
		Duration:     stringField(m, "duration"),
		Location:     stringField(m, "location"),
		Notes:        stringField(m, "notes"),
		Attendees:    listField(m, "attendees"),
		EventID:      stringField(m, "event_id"),
		DateRange:    stringField(m, "date_range"),
		QueryType:    model.QueryType(strings.ToLower(stringField(m, "query_type"))),
		Response:     stringField(m, "response"),
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func listField(m map[string]any, key string) []string {
	var out []string
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
