package security

import (
	"strings"
	"testing"
)

func TestTextSanitizer_Text(t *testing.T) {
	s := NewTextSanitizer(0)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Groceries at the market", "Groceries at the market"},
		{"タグを除去する", "<b>Lunch</b> with <i>team</i>", "Lunch with team"},
		{"scriptは中身ごと除去する", "<script>alert(1)</script>Taxi", "Taxi"},
		{"エンティティはデコードする", "Tom & Jerry", "Tom & Jerry"},
		{"前後の空白を詰める", "   coffee  ", "coffee"},
		{"制御文字を除去する", "bus\x00 fare", "bus fare"},
		{"空文字", "", ""},
		{"日本語", "<p>ランチ代</p>", "ランチ代"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextSanitizer_TextRejectsEncodedMarkup(t *testing.T) {
	s := NewTextSanitizer(0)

	inputs := []string{
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&amp;lt;script&amp;gt;alert(1)&amp;lt;/script&amp;gt;",
		"&lt;img src=x onerror=alert(1)&gt;",
		"<<b>script>alert(1)<</b>/script>",
		"&#60;iframe src=javascript:alert(1)&#62;",
	}

	for _, in := range inputs {
		got := s.Text(in)
		lower := strings.ToLower(got)
		for _, bad := range []string{"<script", "<img", "<iframe", "onerror="} {
			if strings.Contains(lower, bad) {
				t.Errorf("Text(%q) = %q, contains %q", in, got, bad)
			}
		}
		if again := s.Text(got); again != got {
			t.Errorf("Text is not stable for %q: %q then %q", in, got, again)
		}
	}
}

func TestTextSanitizer_TextKeepsLiteralComparison(t *testing.T) {
	s := NewTextSanitizer(0)
	if got := s.Text("5 < 10 & 3 > 1"); got != "5 < 10 & 3 > 1" {
		t.Errorf("Text() = %q, want literal operators kept", got)
	}
}

func TestTextSanitizer_TextTruncates(t *testing.T) {
	s := NewTextSanitizer(5)
	if got := s.Text("abcdefgh"); got != "abcde" {
		t.Errorf("Text() = %q, want %q", got, "abcde")
	}
	if got := s.Text("あいうえおかき"); got != "あいうえお" {
		t.Errorf("Text() = %q, want rune-based truncation", got)
	}
}

func TestTextSanitizer_Tags(t *testing.T) {
	s := NewTextSanitizer(0)

	got := s.Tags([]string{"food", " <b>lunch</b> ", "", "food", "a,b"})
	want := []string{"food", "lunch", "a b"}

	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
}
