package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/hitoshi/expenfyre/internal/model"
)

const (
	DefaultMonths   = 6
	MaxMonths       = 24
	DefaultTopLimit = 10
	MaxTopLimit     = 100
)

// ExpenseSource は操作者が閲覧できる有効な支出を返す。
type ExpenseSource interface {
	Visible(ctx context.Context, actor string) ([]*model.Expense, error)
}

// BudgetSource は操作者が閲覧できる有効な予算を返す。
type BudgetSource interface {
	Visible(ctx context.Context, actor string) ([]*model.Budget, error)
}

// CategoryNamer はカテゴリIDから表示名を引く。
type CategoryNamer interface {
	Names(ctx context.Context) (map[string]string, error)
}

// Query は集計の共通条件。
type Query struct {
	Month   string // YYYY-MM。空なら当月
	GroupID string // 空なら所属する全グループ
	Months  int    // 月次比較・推移の月数
	Limit   int    // 上位件数
}

// Service は集計のサービス層。
type Service struct {
	expenses   ExpenseSource
	budgets    BudgetSource
	categories CategoryNamer
	now        func() time.Time
}

// NewService はServiceを生成する。categoriesはnilでもよい。
func NewService(expenses ExpenseSource, budgets BudgetSource, categories CategoryNamer) *Service {
	return &Service{expenses: expenses, budgets: budgets, categories: categories, now: time.Now}
}

func (s *Service) normalize(q Query) Query {
	if q.Month == "" {
		q.Month = s.now().Format("2006-01")
	}
	if q.Months <= 0 {
		q.Months = DefaultMonths
	}
	if q.Months > MaxMonths {
		q.Months = MaxMonths
	}
	if q.Limit <= 0 {
		q.Limit = DefaultTopLimit
	}
	if q.Limit > MaxTopLimit {
		q.Limit = MaxTopLimit
	}
	return q
}

func (s *Service) load(ctx context.Context, actor string, q Query) (Query, []*model.Expense, []*model.Budget, error) {
	q = s.normalize(q)
	if !model.ValidMonth(q.Month) {
		return q, nil, nil, model.NewValidationError("month must be in YYYY-MM format")
	}
	expenses, err := s.expenses.Visible(ctx, actor)
	if err != nil {
		return q, nil, nil, err
	}
	budgets, err := s.budgets.Visible(ctx, actor)
	if err != nil {
		return q, nil, nil, err
	}
	return q, ExpensesIn(expenses, "", q.GroupID), BudgetsFor(budgets, "", q.GroupID), nil
}

func (s *Service) names(ctx context.Context) map[string]string {
	if s.categories == nil {
		return map[string]string{}
	}
	names, err := s.categories.Names(ctx)
	if err != nil {
		return map[string]string{}
	}
	return names
}

// Summary は月の概要。
type Summary struct {
	Month              string  `json:"month"`
	TotalExpenses      float64 `json:"total_expenses"`
	ExpenseCount       int     `json:"expense_count"`
	AverageExpense     float64 `json:"average_expense"`
	TotalBudget        float64 `json:"total_budget"`
	Remaining          float64 `json:"remaining"`
	BudgetUtilization  float64 `json:"budget_utilization"`
	Status             string  `json:"status"`
	TopCategoryID      string  `json:"top_category_id"`
	TopCategoryAmount  float64 `json:"top_category_amount"`
	PreviousMonthTotal float64 `json:"previous_month_total"`
	ChangePercent      float64 `json:"change_percent"`
}

// Summary は月の支出合計・予算・前月比を返す。
func (s *Service) Summary(ctx context.Context, actor string, q Query) (*Summary, error) {
	q, expenses, budgets, err := s.load(ctx, actor, q)
	if err != nil {
		return nil, err
	}

	month := ExpensesIn(expenses, q.Month, "")
	total := Sum(month)
	budget := BudgetTotal(BudgetsFor(budgets, q.Month, ""))
	prevTotal := Sum(ExpensesIn(expenses, PreviousMonth(q.Month), ""))

	out := &Summary{
		Month:              q.Month,
		TotalExpenses:      total,
		ExpenseCount:       len(month),
		TotalBudget:        budget,
		Remaining:          round2(budget - total),
		BudgetUtilization:  Percent(total, budget),
		PreviousMonthTotal: prevTotal,
		ChangePercent:      Percent(total-prevTotal, prevTotal),
	}
	if len(month) > 0 {
		out.AverageExpense = round2(total / float64(len(month)))
	}
	out.Status = UtilizationStatus(out.BudgetUtilization)

	byCategory := map[string]float64{}
	for _, e := range month {
		byCategory[e.CategoryID] += e.Amount
	}
	for id, amount := range byCategory {
		if amount > out.TopCategoryAmount || (amount == out.TopCategoryAmount && id < out.TopCategoryID) {
			out.TopCategoryID = id
			out.TopCategoryAmount = round2(amount)
		}
	}
	return out, nil
}

// CategoryBreakdown はカテゴリ別の支出と予算。
type CategoryBreakdown struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	TotalAmount  float64 `json:"total_amount"`
	ExpenseCount int     `json:"expense_count"`
	Percentage   float64 `json:"percentage"`
	BudgetAmount float64 `json:"budget_amount"`
	Remaining    float64 `json:"remaining"`
	OverBudget   bool    `json:"over_budget"`
}

// CategoryBreakdown は月のカテゴリ別集計を支出額の降順で返す。
func (s *Service) CategoryBreakdown(ctx context.Context, actor string, q Query) ([]*CategoryBreakdown, error) {
	q, expenses, budgets, err := s.load(ctx, actor, q)
	if err != nil {
		return nil, err
	}
	return BreakdownByCategory(ExpensesIn(expenses, q.Month, ""), BudgetsFor(budgets, q.Month, ""), s.names(ctx)), nil
}

// BreakdownByCategory はカテゴリ別に支出と予算を突き合わせる。
// 予算のないカテゴリはover_budgetにならない。
func BreakdownByCategory(expenses []*model.Expense, budgets []*model.Budget, names map[string]string) []*CategoryBreakdown {
	rows := map[string]*CategoryBreakdown{}
	get := func(id string) *CategoryBreakdown {
		r, ok := rows[id]
		if !ok {
			r = &CategoryBreakdown{CategoryID: id, CategoryName: names[id]}
			rows[id] = r
		}
		return r
	}

	total := 0.0
	for _, e := range expenses {
		r := get(e.CategoryID)
		r.TotalAmount += e.Amount
		r.ExpenseCount++
		total += e.Amount
	}
	for _, b := range budgets {
		get(b.CategoryID).BudgetAmount += b.Amount
	}

	out := make([]*CategoryBreakdown, 0, len(rows))
	for _, r := range rows {
		r.TotalAmount = round2(r.TotalAmount)
		r.BudgetAmount = round2(r.BudgetAmount)
		r.Remaining = round2(r.BudgetAmount - r.TotalAmount)
		r.OverBudget = r.BudgetAmount > 0 && r.Remaining < 0
		r.Percentage = Percent(r.TotalAmount, total)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAmount != out[j].TotalAmount {
			return out[i].TotalAmount > out[j].TotalAmount
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}

// MonthTotal は1か月分の支出と予算。
type MonthTotal struct {
	Month        string  `json:"month"`
	TotalAmount  float64 `json:"total_amount"`
	ExpenseCount int     `json:"expense_count"`
	BudgetAmount float64 `json:"budget_amount"`
	Difference   float64 `json:"difference"`
	Change       float64 `json:"change_percent"`
}

// MonthlyComparison はq.Monthまでのq.Monthsか月分を古い順に返す。
func (s *Service) MonthlyComparison(ctx context.Context, actor string, q Query) ([]*MonthTotal, error) {
	q, expenses, budgets, err := s.load(ctx, actor, q)
	if err != nil {
		return nil, err
	}

	out := make([]*MonthTotal, 0, q.Months)
	prev := Sum(ExpensesIn(expenses, PreviousMonth(MonthsEnding(q.Month, q.Months)[0]), ""))
	for _, m := range MonthsEnding(q.Month, q.Months) {
		month := ExpensesIn(expenses, m, "")
		total := Sum(month)
		budget := BudgetTotal(BudgetsFor(budgets, m, ""))
		out = append(out, &MonthTotal{
			Month:        m,
			TotalAmount:  total,
			ExpenseCount: len(month),
			BudgetAmount: budget,
			Difference:   round2(budget - total),
			Change:       Percent(total-prev, prev),
		})
		prev = total
	}
	return out, nil
}

// BudgetPerformance は予算ごとの消化状況。
type BudgetPerformance struct {
	BudgetID     string  `json:"budget_id"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	GroupID      string  `json:"group_id"`
	BudgetAmount float64 `json:"budget_amount"`
	Rollover     float64 `json:"rollover_amount"`
	Spent        float64 `json:"spent"`
	Remaining    float64 `json:"remaining"`
	Utilization  float64 `json:"utilization"`
	Status       string  `json:"status"`
}

// BudgetPerformance は月に適用される予算を消化率の降順で返す。
func (s *Service) BudgetPerformance(ctx context.Context, actor string, q Query) ([]*BudgetPerformance, error) {
	q, expenses, budgets, err := s.load(ctx, actor, q)
	if err != nil {
		return nil, err
	}
	return PerformanceFor(budgets, expenses, q.Month, s.names(ctx)), nil
}

// PerformanceFor は月に適用される各予算の消化状況を計算する。
func PerformanceFor(budgets []*model.Budget, expenses []*model.Expense, month string, names map[string]string) []*BudgetPerformance {
	applied := BudgetsFor(budgets, month, "")
	spentBy := SpentByBudget(applied, expenses, month)
	out := make([]*BudgetPerformance, 0, len(applied))
	for _, b := range applied {
		rollover := RolloverAmount(b, budgets, expenses, month)
		effective := round2(b.Amount + rollover)
		spent := spentBy[b.ID]
		util := Percent(spent, effective)
		out = append(out, &BudgetPerformance{
			BudgetID:     b.ID,
			CategoryID:   b.CategoryID,
			CategoryName: names[b.CategoryID],
			GroupID:      b.GroupID,
			BudgetAmount: effective,
			Rollover:     rollover,
			Spent:        spent,
			Remaining:    round2(effective - spent),
			Utilization:  util,
			Status:       UtilizationStatus(util),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Utilization > out[j].Utilization
	})
	return out
}

// TopExpenses は月の支出を金額の降順でq.Limit件返す。
func (s *Service) TopExpenses(ctx context.Context, actor string, q Query) ([]*model.Expense, error) {
	q, expenses, _, err := s.load(ctx, actor, q)
	if err != nil {
		return nil, err
	}

	month := ExpensesIn(expenses, q.Month, "")
	sorted := make([]*model.Expense, len(month))
	copy(sorted, month)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount > sorted[j].Amount
	})
	if len(sorted) > q.Limit {
		sorted = sorted[:q.Limit]
	}
	return sorted, nil
}

// DailyTotal は1日分の支出。
type DailyTotal struct {
	Date             string  `json:"date"`
	TotalAmount      float64 `json:"total_amount"`
	ExpenseCount     int     `json:"expense_count"`
	CumulativeAmount float64 `json:"cumulative_amount"`
}

// DailyTrend は月の全日について日別合計と累計を日付順に返す。
func (s *Service) DailyTrend(ctx context.Context, actor string, q Query) ([]*DailyTotal, error) {
	q, expenses, _, err := s.load(ctx, actor, q)
	if err != nil {
		return nil, err
	}

	byDay := map[string]*DailyTotal{}
	for _, e := range ExpensesIn(expenses, q.Month, "") {
		d, ok := byDay[e.Date]
		if !ok {
			d = &DailyTotal{Date: e.Date}
			byDay[e.Date] = d
		}
		d.TotalAmount += e.Amount
		d.ExpenseCount++
	}

	days := DaysIn(q.Month)
	out := make([]*DailyTotal, 0, len(days))
	cumulative := 0.0
	for _, day := range days {
		d, ok := byDay[day]
		if !ok {
			d = &DailyTotal{Date: day}
		}
		d.TotalAmount = round2(d.TotalAmount)
		cumulative += d.TotalAmount
		d.CumulativeAmount = round2(cumulative)
		out = append(out, d)
	}
	return out, nil
}

// MonthUtilization は1か月分の予算消化率。
type MonthUtilization struct {
	Month        string  `json:"month"`
	BudgetAmount float64 `json:"budget_amount"`
	Spent        float64 `json:"spent"`
	Utilization  float64 `json:"utilization"`
	Status       string  `json:"status"`
}

// BudgetUtilization はq.Monthまでのq.Monthsか月分の予算消化率を古い順に返す。
// 繰り返し予算は月ごとの行を持たず、開始月以降の各月に適用される。
func (s *Service) BudgetUtilization(ctx context.Context, actor string, q Query) ([]*MonthUtilization, error) {
	q, expenses, budgets, err := s.load(ctx, actor, q)
	if err != nil {
		return nil, err
	}

	out := make([]*MonthUtilization, 0, q.Months)
	for _, m := range MonthsEnding(q.Month, q.Months) {
		applied := BudgetsFor(budgets, m, "")
		spentBy := SpentByBudget(applied, expenses, m)
		budget := 0.0
		spent := 0.0
		for _, b := range applied {
			budget += b.Amount + RolloverAmount(b, budgets, expenses, m)
			spent += spentBy[b.ID]
		}
		util := Percent(spent, budget)
		out = append(out, &MonthUtilization{
			Month:        m,
			BudgetAmount: round2(budget),
			Spent:        round2(spent),
			Utilization:  util,
			Status:       UtilizationStatus(util),
		})
	}
	return out, nil
}
