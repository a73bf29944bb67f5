package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/expenfyre/internal/budget"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// BudgetService は予算ハンドラーが必要とするサービスインターフェース。
type BudgetService interface {
	List(ctx context.Context, actor string, f budget.Filter) ([]*model.Budget, error)
	Get(ctx context.Context, actor, id string) (*model.Budget, error)
	Create(ctx context.Context, actor string, in budget.Input) (*model.Budget, error)
	Update(ctx context.Context, actor, id string, p budget.Patch) (*model.Budget, error)
	Delete(ctx context.Context, actor, id string) error
	Analytics(ctx context.Context, actor, month, groupID string) (*budget.Report, error)
}

// BudgetHandler は予算のHTTPハンドラー。
type BudgetHandler struct {
	service BudgetService
}

// NewBudgetHandler はBudgetHandlerを生成する。
func NewBudgetHandler(service BudgetService) *BudgetHandler {
	return &BudgetHandler{service: service}
}

// List は予算一覧を返す。monthを指定すると繰り返し予算は開始月以降に含まれる。
// GET /api/budgets?group_id=&category_id=&month=
func (h *BudgetHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	budgets, err := h.service.List(r.Context(), actor, budget.Filter{
		GroupID:    q.Get("group_id"),
		CategoryID: q.Get("category_id"),
		Month:      q.Get("month"),
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, budgets)
}

// Get は予算を1件返す。
// GET /api/budgets/{id}
func (h *BudgetHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	b, err := h.service.Get(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

// Create は予算を登録する。
// POST /api/budgets
func (h *BudgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var in budget.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	b, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

// Update は予算を部分更新する。
// PATCH /api/budgets/{id}
func (h *BudgetHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var p budget.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	b, err := h.service.Update(r.Context(), actor, pathParam(r, "id"), p)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, b)
}

// Delete は予算を論理削除する。
// DELETE /api/budgets/{id}
func (h *BudgetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, pathParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Budget deleted successfully")
}

// Analytics は月ごとの予算消化状況を返す。
// GET /api/budgets/analytics?month=&group_id=
func (h *BudgetHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	report, err := h.service.Analytics(r.Context(), actor, q.Get("month"), q.Get("group_id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}
