// Package category はカテゴリの参照を提供する。
package category

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/repository"
)

// Defaults はCategoriesタブが空のときに返す組み込みカテゴリ。
var Defaults = []*model.Category{
	{ID: "food", Name: "Food & Dining", Icon: "🍽️", Color: "#f97316", IsDefault: true},
	{ID: "transport", Name: "Transportation", Icon: "🚗", Color: "#3b82f6", IsDefault: true},
	{ID: "shopping", Name: "Shopping", Icon: "🛍️", Color: "#ec4899", IsDefault: true},
	{ID: "bills", Name: "Bills & Utilities", Icon: "💡", Color: "#eab308", IsDefault: true},
	{ID: "entertainment", Name: "Entertainment", Icon: "🎬", Color: "#8b5cf6", IsDefault: true},
	{ID: "health", Name: "Health", Icon: "🏥", Color: "#10b981", IsDefault: true},
	{ID: "other", Name: "Other", Icon: "📦", Color: "#6b7280", IsDefault: true},
}

// Service はカテゴリのサービス層。
type Service struct {
	repo repository.CategoryRepository
}

func NewService(repo repository.CategoryRepository) *Service {
	return &Service{repo: repo}
}

// List はシートのカテゴリを返す。1件もなければ組み込みカテゴリを返す。
func (s *Service) List(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if len(categories) == 0 {
		return Defaults, nil
	}
	return categories, nil
}

// Get は指定IDのカテゴリを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Category, error) {
	categories, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range categories {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, model.NewNotFoundError("category", id)
}

// Names はカテゴリIDから名前への対応表を返す。集計の表示名に使う。
func (s *Service) Names(ctx context.Context) (map[string]string, error) {
	categories, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}
