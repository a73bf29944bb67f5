package model

import (
	"strings"
	"time"
)

// MaxReceiptURLLength はレシートURL（data URLを含む）の最大文字数。
const MaxReceiptURLLength = 50000

// Expense は1件の支出。Monthは常にDateの先頭7文字から導出する。
type Expense struct {
	ID          string  `json:"expense_id"`
	CategoryID  string  `json:"category_id"`
	UserID      string  `json:"user_id"`
	GroupID     string  `json:"group_id"`
	BudgetID    string  `json:"budget_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Month       string  `json:"month"`
	ReceiptURL  string  `json:"receipt_url"`
	Tags        string  `json:"tags"`
	Status      Status  `json:"status"`
}

// MonthOf は YYYY-MM-DD 形式の日付から YYYY-MM を返す。
func MonthOf(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// ValidDate は YYYY-MM-DD 形式の有効な日付かを返す。
func ValidDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// ValidMonth は YYYY-MM 形式の有効な月かを返す。
func ValidMonth(month string) bool {
	_, err := time.Parse("2006-01", month)
	return err == nil
}

// TagList はカンマ区切りのタグをスライスで返す。
func (e *Expense) TagList() []string {
	if e.Tags == "" {
		return []string{}
	}
	parts := strings.Split(e.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags はタグのスライスをシート保存用のカンマ区切り文字列にする。
func JoinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, ",")
}
