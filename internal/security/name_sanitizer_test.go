package security

import (
	"strings"
	"testing"
)

// encodeEntities は値をHTML実体参照でn回エンコードする。
func encodeEntities(v string, n int) string {
	for i := 0; i < n; i++ {
		v = strings.ReplaceAll(v, "&", "&amp;")
		v = strings.ReplaceAll(v, "<", "&lt;")
		v = strings.ReplaceAll(v, ">", "&gt;")
	}
	return v
}

func TestNameSanitizer_Sanitize(t *testing.T) {
	s := NewNameSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキストはそのまま", input: "Test", want: "Test"},
		{name: "空文字列", input: "", want: ""},
		{name: "タグを除去する", input: "<b>Tom</b>", want: "Tom"},
		{name: "scriptは中身ごと除去する", input: "<script>alert(1)</script>Bob", want: "Bob"},
		{name: "アンパサンドを保持する", input: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "アポストロフィを保持する", input: "O'Brien", want: "O'Brien"},
		{name: "マルチバイト文字", input: "山田", want: "山田"},
		{name: "タグのみの入力は空になる", input: "<i></i>", want: ""},
		{name: "実体参照でエンコードされたタグも除去する", input: "&lt;b&gt;x&lt;/b&gt;", want: "x"},
		{name: "エンコードされたscriptは中身ごと除去する", input: "&lt;script&gt;alert(1)&lt;/script&gt;", want: ""},
		{name: "二重エンコードされたタグも除去する", input: "&amp;lt;b&amp;gt;x&amp;lt;/b&amp;gt;", want: "x"},
		{name: "タグでない不等号は保持する", input: "a < b", want: "a < b"},
		{name: "6重エンコードまでは除去して値を残す", input: encodeEntities("<b>x</b>", 6), want: "x"},
		{name: "収束しない多重エンコードは空になる", input: encodeEntities("<b>x</b>", 10), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// サニタイズ済みの値を再度サニタイズしても変化しない。
func TestNameSanitizer_Idempotent(t *testing.T) {
	s := NewNameSanitizer()

	inputs := []string{
		"<em>Alice</em> & Bob",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&lt;b&gt;x&lt;/b&gt;",
		"&amp;lt;i&amp;gt;Eve&amp;lt;/i&amp;gt;",
		"Tom &amp; Jerry",
	}

	for _, input := range inputs {
		first := s.Sanitize(input)
		second := s.Sanitize(first)
		if first != second {
			t.Errorf("Sanitize is not idempotent for %q: %q != %q", input, first, second)
		}
		if strings.Contains(first, "<") {
			t.Errorf("Sanitize(%q) = %q still contains markup", input, first)
		}
	}
}
