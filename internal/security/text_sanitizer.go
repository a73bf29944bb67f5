// Package security はユーザー入力の無害化を提供する。
//
// TextSanitizer は支出の説明、グループ名、タグなどの自由入力から
// HTMLタグを取り除き、プレーンテキストとしてシートに保存できる形にする。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はbluemondayのStrictPolicyでタグを除去する。
// 並行利用してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
	maxLen int
}

// NewTextSanitizer はTextSanitizerを生成する。maxLenが0以下なら長さを制限しない。
func NewTextSanitizer(maxLen int) *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
		maxLen: maxLen,
	}
}

// Text はタグと制御文字を取り除き、前後の空白を詰めた文字列を返す。
// エンティティはデコードして保存する（"&" は "&amp;" にしない）。
func (s *TextSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, raw)
	cleaned = strings.TrimSpace(s.stripMarkup(cleaned))

	if s.maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > s.maxLen {
			cleaned = strings.TrimSpace(string(runes[:s.maxLen]))
		}
	}
	return cleaned
}

// maxSanitizePasses はデコードと除去を繰り返す上限回数。
const maxSanitizePasses = 5

// stripMarkup はエンティティを完全にデコードしてからタグを除去し、結果が変わらなくなるまで繰り返す。
// 上限回数で収束しない場合は山括弧を落とす。
func (s *TextSanitizer) stripMarkup(text string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		out := html.UnescapeString(s.policy.Sanitize(unescapeAll(text)))
		if out == text {
			return out
		}
		text = out
	}
	return strings.NewReplacer("<", "", ">", "").Replace(text)
}

// unescapeAll は多重にエンコードされたエンティティがなくなるまでデコードする。
func unescapeAll(text string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		decoded := html.UnescapeString(text)
		if decoded == text {
			return decoded
		}
		text = decoded
	}
	return text
}

// Tags は各タグを無害化し、カンマを含むものと空のものを落とす。
// タグはカンマ区切りで保存されるため、カンマはタグ内に残せない。
func (s *TextSanitizer) Tags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ReplaceAll(s.Text(t), ",", " ")
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
