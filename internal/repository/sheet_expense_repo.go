package repository

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

const TabExpenses = "Expenses"

var expenseCodec = rowCodec[model.Expense]{
	tab: TabExpenses,
	header: []string{
		"expense_id", "category_id", "user_id", "group_id", "budget_id", "amount",
		"description", "date", "month", "receipt_url", "tags", "status",
	},
	idCol: "expense_id",
	decode: func(r rowReader) *model.Expense {
		e := &model.Expense{
			ID:          r.str("expense_id"),
			CategoryID:  r.str("category_id"),
			UserID:      r.str("user_id"),
			GroupID:     r.str("group_id"),
			BudgetID:    r.str("budget_id"),
			Amount:      r.float("amount"),
			Description: r.str("description"),
			Date:        r.str("date"),
			ReceiptURL:  r.str("receipt_url"),
			Tags:        r.str("tags"),
			Status:      model.ParseStatus(r.str("status")),
		}
		e.Month = model.MonthOf(e.Date)
		return e
	},
	encode: func(e *model.Expense) map[string]string {
		return map[string]string{
			"expense_id":  e.ID,
			"category_id": e.CategoryID,
			"user_id":     e.UserID,
			"group_id":    e.GroupID,
			"budget_id":   e.BudgetID,
			"amount":      formatFloat(e.Amount),
			"description": e.Description,
			"date":        e.Date,
			"month":       model.MonthOf(e.Date),
			"receipt_url": e.ReceiptURL,
			"tags":        e.Tags,
			"status":      string(e.Status),
		}
	},
	idOf:  func(e *model.Expense) string { return e.ID },
	setID: func(e *model.Expense, id string) { e.ID = id },
}

// SheetExpenseRepo はExpensesタブを使用した支出リポジトリ。
type SheetExpenseRepo struct {
	store sheetStore[model.Expense]
}

func NewSheetExpenseRepo(table sheets.Table) *SheetExpenseRepo {
	return &SheetExpenseRepo{store: sheetStore[model.Expense]{table: table, codec: expenseCodec}}
}

func (r *SheetExpenseRepo) List(ctx context.Context) ([]*model.Expense, error) {
	return r.store.list(ctx)
}

func (r *SheetExpenseRepo) FindByID(ctx context.Context, id string) (*model.Expense, error) {
	return r.store.find(ctx, id)
}

func (r *SheetExpenseRepo) Create(ctx context.Context, expense *model.Expense) error {
	return r.store.create(ctx, expense)
}

func (r *SheetExpenseRepo) Update(ctx context.Context, expense *model.Expense) error {
	return r.store.update(ctx, expense)
}

var _ ExpenseRepository = (*SheetExpenseRepo)(nil)
