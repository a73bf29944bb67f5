// Package budget は予算の登録・一覧・更新・論理削除と月次の消化状況を提供する。
package budget

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hitoshi/expenfyre/internal/analytics"
	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/repository"
)

// Membership は操作者の所属グループを解決する。
type Membership interface {
	GroupIDsFor(ctx context.Context, actor string) (map[string]bool, error)
	RequireMember(ctx context.Context, actor, groupID string) (*model.GroupMember, error)
	DefaultGroupFor(ctx context.Context, actor string) (string, error)
}

// ExpenseSource は操作者が閲覧できる有効な支出を返す。
type ExpenseSource interface {
	Visible(ctx context.Context, actor string) ([]*model.Expense, error)
}

// Filter は一覧の絞り込み条件。
type Filter struct {
	GroupID    string
	CategoryID string
	Month      string // 繰り返し予算は開始月以降の月に一致する
}

// Input は登録の入力。Recurringでmonthが空の場合は作成月から適用する。
type Input struct {
	CategoryID string  `json:"category_id"`
	GroupID    string  `json:"group_id"`
	Amount     float64 `json:"amount"`
	Month      string  `json:"month"`
	Rollover   bool    `json:"rollover"`
	Recurring  bool    `json:"recurring"`
}

// Patch は部分更新の入力。nilのフィールドは変更しない。
type Patch struct {
	CategoryID *string  `json:"category_id"`
	Amount     *float64 `json:"amount"`
	Month      *string  `json:"month"`
	Rollover   *bool    `json:"rollover"`
	Recurring  *bool    `json:"recurring"`
}

// Service は予算のサービス層。
type Service struct {
	repo     repository.BudgetRepository
	groups   Membership
	expenses ExpenseSource
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.BudgetRepository, groups Membership, expenses ExpenseSource) *Service {
	return &Service{repo: repo, groups: groups, expenses: expenses, now: time.Now}
}

// Visible は操作者の所属グループに属する有効な予算を返す。
func (s *Service) Visible(ctx context.Context, actor string) ([]*model.Budget, error) {
	ids, err := s.groups.GroupIDsFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Budget{}, nil
	}

	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	out := make([]*model.Budget, 0, len(all))
	for _, b := range all {
		if b.Status == model.StatusActive && ids[b.GroupID] {
			out = append(out, b)
		}
	}
	return out, nil
}

// List は絞り込んだ予算を返す。所属外のgroup_idを指定すると空になる。
func (s *Service) List(ctx context.Context, actor string, f Filter) ([]*model.Budget, error) {
	visible, err := s.Visible(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Budget, 0, len(visible))
	for _, b := range visible {
		if f.GroupID != "" && b.GroupID != f.GroupID {
			continue
		}
		if f.CategoryID != "" && b.CategoryID != f.CategoryID {
			continue
		}
		if f.Month != "" && !b.Recurrence.AppliesTo(f.Month) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Get は閲覧可能な予算を1件返す。
func (s *Service) Get(ctx context.Context, actor, id string) (*model.Budget, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if b == nil || b.Status != model.StatusActive {
		return nil, model.NewNotFoundError("budget", id)
	}
	ids, err := s.groups.GroupIDsFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ids[b.GroupID] {
		return nil, model.NewNotFoundError("budget", id)
	}
	return b, nil
}

// Create は予算を登録する。同じグループ・カテゴリで適用月が重なる有効な予算が既にあれば拒否する。
func (s *Service) Create(ctx context.Context, actor string, in Input) (*model.Budget, error) {
	if in.GroupID == "" {
		id, err := s.groups.DefaultGroupFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		in.GroupID = id
	}
	if _, err := s.groups.RequireMember(ctx, actor, in.GroupID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	b := &model.Budget{
		GroupID:   in.GroupID,
		UserID:    actor,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := apply(b, in); err != nil {
		return nil, err
	}
	if err := s.checkDuplicate(ctx, b); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	slog.Info("budget created",
		slog.String("budget_id", b.ID),
		slog.String("group_id", b.GroupID),
		slog.String("month", b.Month),
		slog.String("user_email", actor),
	)
	return b, nil
}

// Update は指定されたフィールドのみ更新する。
func (s *Service) Update(ctx context.Context, actor, id string, p Patch) (*model.Budget, error) {
	b, err := s.mutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	in := Input{
		CategoryID: b.CategoryID,
		GroupID:    b.GroupID,
		Amount:     b.Amount,
		Month:      b.Month,
		Rollover:   b.Rollover,
		Recurring:  b.Recurring,
	}
	if p.CategoryID != nil {
		in.CategoryID = *p.CategoryID
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.Month != nil {
		in.Month = *p.Month
	}
	if p.Rollover != nil {
		in.Rollover = *p.Rollover
	}
	if p.Recurring != nil {
		in.Recurring = *p.Recurring
		// 繰り返しを解除する場合は具体的な月が必要
		if !in.Recurring && in.Month == model.RecurringMonth {
			in.Month = ""
		}
	}

	before := *b
	if err := apply(b, in); err != nil {
		*b = before
		return nil, err
	}
	if b.CategoryID != before.CategoryID || b.Recurrence != before.Recurrence {
		if err := s.checkDuplicate(ctx, b); err != nil {
			*b = before
			return nil, err
		}
	}
	b.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	slog.Info("budget updated",
		slog.String("budget_id", b.ID),
		slog.String("user_email", actor),
	)
	return b, nil
}

// Delete は予算をinactiveにする。
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	b, err := s.mutable(ctx, actor, id)
	if err != nil {
		return err
	}
	b.Status = model.StatusInactive
	b.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, b); err != nil {
		return model.NewUpstreamError("sheets", err)
	}
	slog.Info("budget deleted",
		slog.String("budget_id", id),
		slog.String("user_email", actor),
	)
	return nil
}

// mutable は更新対象の予算を取得する。所属外のグループの予算はNOT_FOUNDになる。
func (s *Service) mutable(ctx context.Context, actor, id string) (*model.Budget, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if b == nil || b.Status != model.StatusActive {
		return nil, model.NewNotFoundError("budget", id)
	}
	ids, err := s.groups.GroupIDsFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ids[b.GroupID] {
		return nil, model.NewNotFoundError("budget", id)
	}
	return b, nil
}

func (s *Service) checkDuplicate(ctx context.Context, b *model.Budget) error {
	all, err := s.repo.List(ctx)
	if err != nil {
		return model.NewUpstreamError("sheets", err)
	}
	for _, other := range all {
		if other.ID == b.ID || other.Status != model.StatusActive {
			continue
		}
		if other.GroupID == b.GroupID && other.CategoryID == b.CategoryID && other.Recurrence.Overlaps(b.Recurrence) {
			return model.NewValidationError("a budget for category %s already applies to %s", b.CategoryID, b.Month)
		}
	}
	return nil
}

// apply は入力を検証してbに反映し、適用形態を導出し直す。
func apply(b *model.Budget, in Input) error {
	if strings.TrimSpace(in.CategoryID) == "" {
		return model.NewValidationError("category_id is required")
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return model.NewValidationError("amount must be a positive number")
	}

	month := strings.TrimSpace(in.Month)
	switch {
	case in.Recurring && (month == "" || month == model.RecurringMonth):
		month = model.RecurringMonth
	case month == model.RecurringMonth:
		return model.NewValidationError("month \"recurring\" requires recurring=true")
	case !model.ValidMonth(month):
		return model.NewValidationError("month must be in YYYY-MM format")
	}

	b.CategoryID = strings.TrimSpace(in.CategoryID)
	b.GroupID = in.GroupID
	b.Amount = in.Amount
	b.Month = month
	b.Rollover = in.Rollover
	b.Recurring = in.Recurring
	b.Recurrence = model.DeriveRecurrence(b.Month, b.CreatedAt)
	if b.Recurring && b.Recurrence.Kind == model.RecurrenceFixed {
		b.Recurrence.Kind = model.RecurrenceRecurring
	}
	return nil
}

// Usage は1件の予算の月次消化状況。
type Usage struct {
	*model.Budget
	RolloverAmount  float64 `json:"rollover_amount"`
	EffectiveAmount float64 `json:"effective_amount"`
	Spent           float64 `json:"spent"`
	Remaining       float64 `json:"remaining"`
	Utilization     float64 `json:"utilization"`
	State           string  `json:"utilization_status"`
}

// Report は月次の予算消化状況と合計。
type Report struct {
	Month          string   `json:"month"`
	Budgets        []*Usage `json:"budgets"`
	TotalBudget    float64  `json:"total_budget"`
	TotalSpent     float64  `json:"total_spent"`
	TotalRemaining float64  `json:"total_remaining"`
	Utilization    float64  `json:"utilization"`
	State          string   `json:"utilization_status"`
	OverBudget     int      `json:"over_budget_count"`
}

// Analytics は指定月に適用される予算ごとの消化状況を返す。monthが空なら当月。
// 繰越設定の予算には前月の未使用額を加算する。
func (s *Service) Analytics(ctx context.Context, actor, month, groupID string) (*Report, error) {
	if month == "" {
		month = s.now().Format("2006-01")
	}
	if !model.ValidMonth(month) {
		return nil, model.NewValidationError("month must be in YYYY-MM format")
	}

	budgets, err := s.Visible(ctx, actor)
	if err != nil {
		return nil, err
	}
	expenses, err := s.expenses.Visible(ctx, actor)
	if err != nil {
		return nil, err
	}
	budgets = analytics.BudgetsFor(budgets, "", groupID)
	expenses = analytics.ExpensesIn(expenses, "", groupID)

	report := &Report{Month: month, Budgets: []*Usage{}}
	applied := analytics.BudgetsFor(budgets, month, "")
	spentBy := analytics.SpentByBudget(applied, expenses, month)
	for _, b := range applied {
		rollover := analytics.RolloverAmount(b, budgets, expenses, month)
		effective := b.Amount + rollover
		spent := spentBy[b.ID]
		util := analytics.Percent(spent, effective)

		st := &Usage{
			Budget:          b,
			RolloverAmount:  rollover,
			EffectiveAmount: round2(effective),
			Spent:           spent,
			Remaining:       round2(effective - spent),
			Utilization:     util,
			State:           analytics.UtilizationStatus(util),
		}
		if st.Remaining < 0 {
			report.OverBudget++
		}
		report.Budgets = append(report.Budgets, st)
		report.TotalBudget += effective
		report.TotalSpent += spent
	}

	report.TotalBudget = round2(report.TotalBudget)
	report.TotalSpent = round2(report.TotalSpent)
	report.TotalRemaining = round2(report.TotalBudget - report.TotalSpent)
	report.Utilization = analytics.Percent(report.TotalSpent, report.TotalBudget)
	report.State = analytics.UtilizationStatus(report.Utilization)
	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
