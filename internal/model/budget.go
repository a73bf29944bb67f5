package model

import "time"

// RecurringMonth はシート上で繰り返し予算を表す月の番兵値。
const RecurringMonth = "recurring"

// RecurrenceKind は予算の適用形態。
type RecurrenceKind int

const (
	// RecurrenceFixed は特定の1か月のみに適用される予算。
	RecurrenceFixed RecurrenceKind = iota
	// RecurrenceRecurring は開始月以降のすべての月に適用される予算。
	RecurrenceRecurring
)

// Recurrence は予算がどの月に適用されるかを表す。
// Fixedの場合Monthは対象月、Recurringの場合Monthは開始月（YYYY-MM）。
type Recurrence struct {
	Kind  RecurrenceKind
	Month string
}

// AppliesTo は指定月（YYYY-MM）にこの予算が適用されるかを返す。
// YYYY-MM形式は辞書順と時系列順が一致するため文字列比較で判定する。
func (r Recurrence) AppliesTo(month string) bool {
	if r.Kind == RecurrenceRecurring {
		return r.Month != "" && r.Month <= month
	}
	return r.Month == month
}

// Overlaps は2つの適用形態に共通して適用される月があるかを返す。
// 繰り返し予算同士は開始月によらず必ず重なる。
func (r Recurrence) Overlaps(o Recurrence) bool {
	switch {
	case r.Kind == RecurrenceRecurring && o.Kind == RecurrenceRecurring:
		return true
	case r.Kind == RecurrenceRecurring:
		return r.AppliesTo(o.Month)
	case o.Kind == RecurrenceRecurring:
		return o.AppliesTo(r.Month)
	default:
		return r.Month == o.Month
	}
}

// Budget はカテゴリごとの月次予算。
type Budget struct {
	ID         string    `json:"budget_id"`
	CategoryID string    `json:"category_id"`
	Amount     float64   `json:"amount"`
	Month      string    `json:"month"`
	Rollover   bool      `json:"rollover"`
	Recurring  bool      `json:"recurring"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`

	// Recurrence は読み込み時に一度だけ導出され、以降の月判定はこれを使う。
	Recurrence Recurrence `json:"-"`
}

// DeriveRecurrence はシートに保存された月の値と作成日時から適用形態を導出する。
// month=="recurring" の場合はcreated_atの月を開始月とする。
func DeriveRecurrence(month string, createdAt time.Time) Recurrence {
	if month == RecurringMonth {
		start := ""
		if !createdAt.IsZero() {
			start = createdAt.UTC().Format("2006-01")
		}
		return Recurrence{Kind: RecurrenceRecurring, Month: start}
	}
	return Recurrence{Kind: RecurrenceFixed, Month: month}
}
