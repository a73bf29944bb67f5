package category

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/repository"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

type mockRepo struct {
	listFn func(ctx context.Context) ([]*model.Category, error)
}

func (m *mockRepo) List(ctx context.Context) ([]*model.Category, error) {
	return m.listFn(ctx)
}

func (m *mockRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	return nil, nil
}

func TestService_ListFromSheet(t *testing.T) {
	table := sheets.NewMemoryTable()
	table.Seed(repository.TabCategories, [][]string{
		{"category_id", "name", "icon", "color", "is_default"},
		{"cat-1", "Groceries", "🛒", "#00ff00", "true"},
	})
	svc := NewService(repository.NewSheetCategoryRepo(table))

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "Groceries" {
		t.Errorf("List() = %+v", got)
	}

	c, err := svc.Get(context.Background(), "cat-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !c.IsDefault {
		t.Error("IsDefault = false, want true")
	}
}

func TestService_ListFallsBackToDefaults(t *testing.T) {
	svc := NewService(repository.NewSheetCategoryRepo(sheets.NewMemoryTable()))

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != len(Defaults) {
		t.Errorf("len = %d, want %d", len(got), len(Defaults))
	}

	names, err := svc.Names(context.Background())
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	if names["food"] != "Food & Dining" {
		t.Errorf("names[food] = %q", names["food"])
	}
}

func TestService_GetNotFound(t *testing.T) {
	svc := NewService(repository.NewSheetCategoryRepo(sheets.NewMemoryTable()))
	_, err := svc.Get(context.Background(), "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestService_ListUpstreamError(t *testing.T) {
	svc := NewService(&mockRepo{listFn: func(context.Context) ([]*model.Category, error) {
		return nil, errors.New("quota exceeded")
	}})
	_, err := svc.List(context.Background())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUpstream {
		t.Fatalf("err = %v, want upstream error", err)
	}
}
