package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/expenfyre/internal/expense"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// ExpenseService は支出ハンドラーが必要とするサービスインターフェース。
type ExpenseService interface {
	List(ctx context.Context, actor string, f expense.Filter) (*expense.Page, error)
	Get(ctx context.Context, actor, id string) (*model.Expense, error)
	Create(ctx context.Context, actor string, in expense.Input) (*model.Expense, error)
	Replace(ctx context.Context, actor, id string, in expense.Input) (*model.Expense, error)
	Update(ctx context.Context, actor, id string, p expense.Patch) (*model.Expense, error)
	Delete(ctx context.Context, actor, id string) error
}

// ExpenseHandler は支出のHTTPハンドラー。
type ExpenseHandler struct {
	service ExpenseService
}

// NewExpenseHandler はExpenseHandlerを生成する。
func NewExpenseHandler(service ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{service: service}
}

// List は絞り込み・ページングした支出一覧を返す。
// GET /api/expenses?group_id=&category_id=&budget_id=&user_id=&month=&start_date=&end_date=&search=&limit=&offset=
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", expense.DefaultLimit)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	page, err := h.service.List(r.Context(), actor, expense.Filter{
		GroupID:    q.Get("group_id"),
		CategoryID: q.Get("category_id"),
		BudgetID:   q.Get("budget_id"),
		UserID:     q.Get("user_id"),
		Month:      q.Get("month"),
		StartDate:  q.Get("start_date"),
		EndDate:    q.Get("end_date"),
		Search:     q.Get("search"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, page)
}

// Get は支出を1件返す。
// GET /api/expenses/{id}
func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, e)
}

// Create は支出を登録する。
// POST /api/expenses
func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in expense.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, e)
}

// Replace は支出を置き換える。
// PUT /api/expenses/{id}
func (h *ExpenseHandler) Replace(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in expense.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := h.service.Replace(r.Context(), actor, pathParam(r, "id"), in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, e)
}

// Update は支出を部分更新する。
// PATCH /api/expenses/{id}
func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var p expense.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	e, err := h.service.Update(r.Context(), actor, pathParam(r, "id"), p)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, e)
}

// Delete は支出を論理削除する。
// DELETE /api/expenses/{id}
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, pathParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Expense deleted successfully")
}
