package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/expenfyre/internal/expense"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

type mockExpenseService struct {
	listFn func(ctx context.Context, actor string, f expense.Filter) (*expense.Page, error)
}

func (m *mockExpenseService) List(ctx context.Context, actor string, f expense.Filter) (*expense.Page, error) {
	return m.listFn(ctx, actor, f)
}

func (m *mockExpenseService) Get(ctx context.Context, actor, id string) (*model.Expense, error) {
	return nil, model.NewNotFoundError("expense", id)
}

func (m *mockExpenseService) Create(ctx context.Context, actor string, in expense.Input) (*model.Expense, error) {
	return nil, model.NewValidationError("not supported")
}

func (m *mockExpenseService) Replace(ctx context.Context, actor, id string, in expense.Input) (*model.Expense, error) {
	return nil, model.NewValidationError("not supported")
}

func (m *mockExpenseService) Update(ctx context.Context, actor, id string, p expense.Patch) (*model.Expense, error) {
	return nil, model.NewValidationError("not supported")
}

func (m *mockExpenseService) Delete(ctx context.Context, actor, id string) error {
	return model.NewValidationError("not supported")
}

func listRequest(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(middleware.ContextWithUserEmail(req.Context(), "alice@example.com"))
}

func TestExpenseHandler_List_LimitDefaults(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantLimit int
		wantOff   int
	}{
		{"default limit", "/api/expenses", expense.DefaultLimit, 0},
		{"explicit limit", "/api/expenses?limit=5&offset=10", 5, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got expense.Filter
			h := NewExpenseHandler(&mockExpenseService{
				listFn: func(ctx context.Context, actor string, f expense.Filter) (*expense.Page, error) {
					got = f
					return &expense.Page{}, nil
				},
			})

			w := httptest.NewRecorder()
			h.List(w, listRequest(tt.target))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body=%s", w.Code, w.Body.String())
			}
			if got.Limit != tt.wantLimit || got.Offset != tt.wantOff {
				t.Errorf("filter limit/offset = %d/%d, want %d/%d", got.Limit, got.Offset, tt.wantLimit, tt.wantOff)
			}
		})
	}
}

func TestExpenseHandler_List_RejectsNegativeLimit(t *testing.T) {
	h := NewExpenseHandler(&mockExpenseService{
		listFn: func(ctx context.Context, actor string, f expense.Filter) (*expense.Page, error) {
			t.Error("List should not be called")
			return nil, nil
		},
	})

	w := httptest.NewRecorder()
	h.List(w, listRequest("/api/expenses?limit=-1"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
