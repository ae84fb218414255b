package security

import "testing"

func TestTextSanitizer_Sanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "You have 2 meetings today.", "You have 2 meetings today."},
		{"タグを除去", "<b>Lunch</b> at <i>noon</i>", "Lunch at noon"},
		{"scriptは中身ごと除去", `hi<script>alert("x")</script>`, "hi"},
		{"イベント属性を除去", `<img src=x onerror="alert(1)">ok`, "ok"},
		{"実体参照を戻す", "Tom & Jerry's", "Tom & Jerry's"},
		{"空文字列", "", ""},
	}

	s := NewTextSanitizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	once := s.Sanitize("<p>Review <a href=\"https://x\">doc</a></p>")
	if twice := s.Sanitize(once); twice != once {
		t.Errorf("Sanitize not idempotent: %q then %q", once, twice)
	}
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキスト", "  Bring laptop  ", "Bring laptop"},
		{"br は改行", "Line 1<br>Line 2", "Line 1\nLine 2"},
		{"段落とリスト", "<p>Agenda</p><ul><li>Intro</li><li>Q&amp;A</li></ul>", "Agenda\nIntro\nQ&A"},
		{"リンクは文字だけ残す", `Join <a href="https://meet.example.com/abc">here</a>`, "Join here"},
		{"styleは捨てる", "<style>p{color:red}</style>Notes", "Notes"},
		{"空白を詰める", "<div>a   b\t c</div>", "a b c"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToText(tt.input); got != tt.want {
				t.Errorf("HTMLToText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
