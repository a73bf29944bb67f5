package repository

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

const TabBudgets = "Budgets"

var budgetCodec = rowCodec[model.Budget]{
	tab: TabBudgets,
	header: []string{
		"budget_id", "category_id", "amount", "month", "rollover", "recurring",
		"status", "created_at", "updated_at", "group_id", "user_id",
	},
	idCol: "budget_id",
	decode: func(r rowReader) *model.Budget {
		b := &model.Budget{
			ID:         r.str("budget_id"),
			CategoryID: r.str("category_id"),
			Amount:     r.float("amount"),
			Month:      r.str("month"),
			Rollover:   r.bool("rollover"),
			Recurring:  r.bool("recurring"),
			Status:     model.ParseStatus(r.str("status")),
			CreatedAt:  r.time("created_at"),
			UpdatedAt:  r.time("updated_at"),
			GroupID:    r.str("group_id"),
			UserID:     r.str("user_id"),
		}
		b.Recurrence = model.DeriveRecurrence(b.Month, b.CreatedAt)
		// 月が明示された繰り返し予算はその月から適用する
		if b.Recurring && b.Recurrence.Kind == model.RecurrenceFixed && model.ValidMonth(b.Month) {
			b.Recurrence.Kind = model.RecurrenceRecurring
		}
		return b
	},
	encode: func(b *model.Budget) map[string]string {
		return map[string]string{
			"budget_id":   b.ID,
			"category_id": b.CategoryID,
			"amount":      formatFloat(b.Amount),
			"month":       b.Month,
			"rollover":    formatBool(b.Rollover),
			"recurring":   formatBool(b.Recurring),
			"status":      string(b.Status),
			"created_at":  formatTime(b.CreatedAt),
			"updated_at":  formatTime(b.UpdatedAt),
			"group_id":    b.GroupID,
			"user_id":     b.UserID,
		}
	},
	idOf:  func(b *model.Budget) string { return b.ID },
	setID: func(b *model.Budget, id string) { b.ID = id },
}

// SheetBudgetRepo はBudgetsタブを使用した予算リポジトリ。
type SheetBudgetRepo struct {
	store sheetStore[model.Budget]
}

func NewSheetBudgetRepo(table sheets.Table) *SheetBudgetRepo {
	return &SheetBudgetRepo{store: sheetStore[model.Budget]{table: table, codec: budgetCodec}}
}

func (r *SheetBudgetRepo) List(ctx context.Context) ([]*model.Budget, error) {
	return r.store.list(ctx)
}

func (r *SheetBudgetRepo) FindByID(ctx context.Context, id string) (*model.Budget, error) {
	return r.store.find(ctx, id)
}

func (r *SheetBudgetRepo) Create(ctx context.Context, budget *model.Budget) error {
	return r.store.create(ctx, budget)
}

func (r *SheetBudgetRepo) Update(ctx context.Context, budget *model.Budget) error {
	return r.store.update(ctx, budget)
}

var _ BudgetRepository = (*SheetBudgetRepo)(nil)
