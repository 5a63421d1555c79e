package security

import "testing"

// TestSanitize_StripsTags はHTMLタグが除去されプレーンテキストになることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"太字タグが除去される", "<b>Hello</b>", "Hello"},
		{"scriptは内容ごと除去される", "<script>alert(1)</script>", ""},
		{"styleは内容ごと除去される", "<style>body{}</style>本文", "本文"},
		{"イベント属性付きタグ", `<img src="x" onerror="alert(1)">画像`, "画像"},
		{"リンクはテキストのみ残る", `<a href="https://example.com">リンク</a>`, "リンク"},
		{"前後の空白が除去される", "  Team A wins \n", "Team A wins"},
		{"記号はエスケープされずに残る", "A & B's \"odds\"", "A & B's \"odds\""},
		{"日本語テキスト", "今日の予想です", "今日の予想です"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_PreservesNewlines は本文中の改行が保持されることを検証する。
func TestSanitize_PreservesNewlines(t *testing.T) {
	got := NewTextSanitizer().Sanitize("1行目\n2行目")
	if got != "1行目\n2行目" {
		t.Errorf("Sanitize() = %q", got)
	}
}

// TestTextSanitizerInterface はインターフェースを実装していることを検証する。
func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
