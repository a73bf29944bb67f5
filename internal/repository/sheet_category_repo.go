package repository

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

const TabCategories = "Categories"

var categoryCodec = rowCodec[model.Category]{
	tab:    TabCategories,
	header: []string{"category_id", "name", "icon", "color", "is_default", "created_at"},
	idCol:  "category_id",
	decode: func(r rowReader) *model.Category {
		return &model.Category{
			ID:        r.str("category_id"),
			Name:      r.str("name"),
			Icon:      r.str("icon"),
			Color:     r.str("color"),
			IsDefault: r.bool("is_default"),
			CreatedAt: r.time("created_at"),
		}
	},
	encode: func(c *model.Category) map[string]string {
		return map[string]string{
			"category_id": c.ID,
			"name":        c.Name,
			"icon":        c.Icon,
			"color":       c.Color,
			"is_default":  formatBool(c.IsDefault),
			"created_at":  formatTime(c.CreatedAt),
		}
	},
	idOf:  func(c *model.Category) string { return c.ID },
	setID: func(c *model.Category, id string) { c.ID = id },
}

// SheetCategoryRepo はCategoriesタブを使用したカテゴリリポジトリ。
type SheetCategoryRepo struct {
	store sheetStore[model.Category]
}

func NewSheetCategoryRepo(table sheets.Table) *SheetCategoryRepo {
	return &SheetCategoryRepo{store: sheetStore[model.Category]{table: table, codec: categoryCodec}}
}

func (r *SheetCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	return r.store.list(ctx)
}

func (r *SheetCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	return r.store.find(ctx, id)
}

var _ CategoryRepository = (*SheetCategoryRepo)(nil)
