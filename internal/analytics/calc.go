// Package analytics は支出と予算の集計を提供する。
//
// 集計はすべて、アクセス制御済みの有効な行に対する純粋関数として実装する。
// 金額は float64 で扱い、分母が0の割合は0とする。
package analytics

import (
	"math"
	"time"

	"github.com/hitoshi/expenfyre/internal/model"
)

// 予算消化率の状態
const (
	StatusUnder = "under"
	StatusNear  = "near"
	StatusOver  = "over"
)

const (
	nearThreshold = 80.0
	overThreshold = 100.0
)

// Percent はpart/wholeを百分率で返す。wholeが0なら0。
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(part / whole * 100)
}

// UtilizationStatus は消化率から状態を判定する。
func UtilizationStatus(pct float64) string {
	switch {
	case pct >= overThreshold:
		return StatusOver
	case pct >= nearThreshold:
		return StatusNear
	default:
		return StatusUnder
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PreviousMonth はYYYY-MMの前月を返す。解釈できなければ空文字。
func PreviousMonth(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return ""
	}
	return t.AddDate(0, -1, 0).Format("2006-01")
}

// MonthsEnding はendを末尾とするn か月分のYYYY-MMを古い順に返す。
func MonthsEnding(end string, n int) []string {
	t, err := time.Parse("2006-01", end)
	if err != nil || n <= 0 {
		return []string{}
	}
	months := make([]string, n)
	for i := 0; i < n; i++ {
		months[n-1-i] = t.AddDate(0, -i, 0).Format("2006-01")
	}
	return months
}

// DaysIn はYYYY-MMの全日付を返す。
func DaysIn(month string) []string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return []string{}
	}
	days := make([]string, 0, 31)
	for d := t; d.Month() == t.Month(); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("2006-01-02"))
	}
	return days
}

// ExpensesIn は月とグループで支出を絞り込む。空の条件は無視する。
func ExpensesIn(expenses []*model.Expense, month, groupID string) []*model.Expense {
	out := make([]*model.Expense, 0, len(expenses))
	for _, e := range expenses {
		if month != "" && e.Month != month {
			continue
		}
		if groupID != "" && e.GroupID != groupID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// BudgetsFor は指定月に適用される予算を返す。繰り返し予算は開始月以降のすべての月に適用される。
func BudgetsFor(budgets []*model.Budget, month, groupID string) []*model.Budget {
	out := make([]*model.Budget, 0, len(budgets))
	for _, b := range budgets {
		if groupID != "" && b.GroupID != groupID {
			continue
		}
		if month != "" && !b.Recurrence.AppliesTo(month) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Sum は支出額の合計。
func Sum(expenses []*model.Expense) float64 {
	total := 0.0
	for _, e := range expenses {
		total += e.Amount
	}
	return round2(total)
}

// BudgetTotal は予算額の合計。
func BudgetTotal(budgets []*model.Budget) float64 {
	total := 0.0
	for _, b := range budgets {
		total += b.Amount
	}
	return round2(total)
}

// budgetKey はグループとカテゴリの組。
type budgetKey struct {
	groupID    string
	categoryID string
}

// primaryBudgets はグループ・カテゴリごとに支出を計上する予算を1件選ぶ。
// 同じ月に複数の予算が重なる場合は固定月の予算を繰り返し予算より優先し、同種なら先頭を使う。
func primaryBudgets(applied []*model.Budget) map[budgetKey]*model.Budget {
	out := make(map[budgetKey]*model.Budget, len(applied))
	for _, b := range applied {
		k := budgetKey{b.GroupID, b.CategoryID}
		cur, ok := out[k]
		if !ok || (cur.Recurrence.Kind == model.RecurrenceRecurring && b.Recurrence.Kind == model.RecurrenceFixed) {
			out[k] = b
		}
	}
	return out
}

// SpentByBudget は指定月に適用される予算ごとの支出合計を予算IDで返す。
// 各支出はいずれか1件の予算にだけ計上される。予算IDで紐付いた支出はその予算に、
// 予算IDを持たない支出は同じグループ・カテゴリの代表予算に計上する。
func SpentByBudget(applied []*model.Budget, expenses []*model.Expense, month string) map[string]float64 {
	byID := make(map[string]*model.Budget, len(applied))
	for _, b := range applied {
		byID[b.ID] = b
	}
	primary := primaryBudgets(applied)

	spent := make(map[string]float64, len(applied))
	for _, e := range expenses {
		if e.Month != month {
			continue
		}
		var target *model.Budget
		if e.BudgetID != "" {
			if b, ok := byID[e.BudgetID]; ok && b.GroupID == e.GroupID {
				target = b
			}
		} else {
			target = primary[budgetKey{e.GroupID, e.CategoryID}]
		}
		if target != nil {
			spent[target.ID] += e.Amount
		}
	}
	for id, v := range spent {
		spent[id] = round2(v)
	}
	return spent
}

// RolloverAmount は繰越設定の予算に加算する前月の未使用額を返す。負にはならない。
// 前月に同じグループ・カテゴリへ適用された代表予算の額から、前月の同カテゴリの支出を引く。
func RolloverAmount(b *model.Budget, budgets []*model.Budget, expenses []*model.Expense, month string) float64 {
	if !b.Rollover {
		return 0
	}
	prev := PreviousMonth(month)
	if prev == "" {
		return 0
	}

	prevPrimary, ok := primaryBudgets(BudgetsFor(budgets, prev, b.GroupID))[budgetKey{b.GroupID, b.CategoryID}]
	if !ok {
		return 0
	}
	prevBudget := prevPrimary.Amount

	prevSpent := 0.0
	for _, e := range ExpensesIn(expenses, prev, b.GroupID) {
		if e.CategoryID == b.CategoryID {
			prevSpent += e.Amount
		}
	}
	return round2(math.Max(0, prevBudget-prevSpent))
}
