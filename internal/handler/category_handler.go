package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// CategoryService はカテゴリ一覧を提供する。
type CategoryService interface {
	List(ctx context.Context) ([]*model.Category, error)
}

// CategoryHandler はカテゴリのHTTPハンドラー。
type CategoryHandler struct {
	service CategoryService
}

// NewCategoryHandler はCategoryHandlerを生成する。
func NewCategoryHandler(service CategoryService) *CategoryHandler {
	return &CategoryHandler{service: service}
}

// List はカテゴリ一覧を返す。
// GET /api/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, categories)
}
