// Package expense は支出の登録・一覧・更新・論理削除を提供する。
package expense

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/repository"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000

	maxDescriptionLength = 500
)

// Membership は操作者の所属グループを解決する。
type Membership interface {
	GroupIDsFor(ctx context.Context, actor string) (map[string]bool, error)
	RequireMember(ctx context.Context, actor, groupID string) (*model.GroupMember, error)
	DefaultGroupFor(ctx context.Context, actor string) (string, error)
}

// Sanitizer はユーザー入力のテキストを無害化する。
type Sanitizer interface {
	Text(raw string) string
	Tags(tags []string) []string
}

// Filter は一覧の絞り込み条件。空の項目は条件にしない。
type Filter struct {
	GroupID    string
	CategoryID string
	BudgetID   string
	UserID     string
	Month      string // YYYY-MM
	StartDate  string // YYYY-MM-DD（含む）
	EndDate    string // YYYY-MM-DD（含む）
	Search     string // 説明とタグの部分一致（大文字小文字を区別しない）
	Limit      int
	Offset     int
}

// Page は一覧の1ページ。
type Page struct {
	Expenses []*model.Expense `json:"expenses"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
	HasMore  bool             `json:"has_more"`
}

// Input は登録・置換（PUT）の入力。
type Input struct {
	CategoryID  string   `json:"category_id"`
	GroupID     string   `json:"group_id"`
	BudgetID    string   `json:"budget_id"`
	Amount      float64  `json:"amount"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	ReceiptURL  string   `json:"receipt_url"`
	Tags        []string `json:"tags"`
}

// Patch は部分更新（PATCH）の入力。nilのフィールドは変更しない。
type Patch struct {
	CategoryID  *string   `json:"category_id"`
	GroupID     *string   `json:"group_id"`
	BudgetID    *string   `json:"budget_id"`
	Amount      *float64  `json:"amount"`
	Description *string   `json:"description"`
	Date        *string   `json:"date"`
	ReceiptURL  *string   `json:"receipt_url"`
	Tags        *[]string `json:"tags"`
}

// Service は支出のサービス層。
type Service struct {
	repo      repository.ExpenseRepository
	groups    Membership
	sanitizer Sanitizer
}

type passthrough struct{}

func (passthrough) Text(raw string) string { return strings.TrimSpace(raw) }

func (passthrough) Tags(tags []string) []string { return tags }

// NewService はServiceを生成する。
func NewService(repo repository.ExpenseRepository, groups Membership, sanitizer Sanitizer) *Service {
	if sanitizer == nil {
		sanitizer = passthrough{}
	}
	return &Service{repo: repo, groups: groups, sanitizer: sanitizer}
}

// Visible は操作者の所属グループに属する有効な支出を挿入順で返す。
// 集計処理からも利用する。
func (s *Service) Visible(ctx context.Context, actor string) ([]*model.Expense, error) {
	ids, err := s.groups.GroupIDsFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Expense{}, nil
	}

	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	out := make([]*model.Expense, 0, len(all))
	for _, e := range all {
		if e.Status == model.StatusActive && ids[e.GroupID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// List は絞り込みとページングを行った一覧を返す。
// アクセス制御は絞り込みより先に適用されるため、所属外のgroup_idを指定しても空になる。
func (s *Service) List(ctx context.Context, actor string, f Filter) (*Page, error) {
	visible, err := s.Visible(ctx, actor)
	if err != nil {
		return nil, err
	}

	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	matched := make([]*model.Expense, 0, len(visible))
	for _, e := range visible {
		if !f.matches(e, search) {
			continue
		}
		matched = append(matched, e)
	}

	page := &Page{Total: len(matched), Limit: f.Limit, Offset: f.Offset}
	if f.Offset >= len(matched) {
		page.Expenses = []*model.Expense{}
		return page, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Expenses = matched[f.Offset:end]
	page.HasMore = end < len(matched)
	return page, nil
}

func (f *Filter) matches(e *model.Expense, search string) bool {
	switch {
	case f.GroupID != "" && e.GroupID != f.GroupID:
		return false
	case f.CategoryID != "" && e.CategoryID != f.CategoryID:
		return false
	case f.BudgetID != "" && e.BudgetID != f.BudgetID:
		return false
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.Month != "" && e.Month != f.Month:
		return false
	case f.StartDate != "" && e.Date < f.StartDate:
		return false
	case f.EndDate != "" && e.Date > f.EndDate:
		return false
	}
	if search != "" {
		hay := strings.ToLower(e.Description + " " + e.Tags)
		if !strings.Contains(hay, search) {
			return false
		}
	}
	return true
}

// Get は閲覧可能な支出を1件返す。所属外や削除済みはNOT_FOUND。
func (s *Service) Get(ctx context.Context, actor, id string) (*model.Expense, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if e == nil || e.Status != model.StatusActive {
		return nil, model.NewNotFoundError("expense", id)
	}
	ids, err := s.groups.GroupIDsFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ids[e.GroupID] {
		return nil, model.NewNotFoundError("expense", id)
	}
	return e, nil
}

// Create は支出を登録する。group_idを省略した場合は操作者の既定グループに登録する。
func (s *Service) Create(ctx context.Context, actor string, in Input) (*model.Expense, error) {
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

	e := &model.Expense{UserID: actor, Status: model.StatusActive}
	if err := s.apply(e, in); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	slog.Info("expense created",
		slog.String("expense_id", e.ID),
		slog.String("group_id", e.GroupID),
		slog.String("user_email", actor),
	)
	return e, nil
}

// Replace は支出の内容を入力で置き換える（PUT）。
func (s *Service) Replace(ctx context.Context, actor, id string, in Input) (*model.Expense, error) {
	e, err := s.mutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.GroupID == "" {
		in.GroupID = e.GroupID
	}
	if in.GroupID != e.GroupID {
		if _, err := s.groups.RequireMember(ctx, actor, in.GroupID); err != nil {
			return nil, err
		}
	}
	if err := s.apply(e, in); err != nil {
		return nil, err
	}
	return s.save(ctx, actor, e)
}

// Update は指定されたフィールドのみ更新する（PATCH）。
func (s *Service) Update(ctx context.Context, actor, id string, p Patch) (*model.Expense, error) {
	e, err := s.mutable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	in := Input{
		CategoryID:  e.CategoryID,
		GroupID:     e.GroupID,
		BudgetID:    e.BudgetID,
		Amount:      e.Amount,
		Description: e.Description,
		Date:        e.Date,
		ReceiptURL:  e.ReceiptURL,
		Tags:        e.TagList(),
	}
	if p.CategoryID != nil {
		in.CategoryID = *p.CategoryID
	}
	if p.GroupID != nil && *p.GroupID != e.GroupID {
		if _, err := s.groups.RequireMember(ctx, actor, *p.GroupID); err != nil {
			return nil, err
		}
		in.GroupID = *p.GroupID
	}
	if p.BudgetID != nil {
		in.BudgetID = *p.BudgetID
	}
	if p.Amount != nil {
		in.Amount = *p.Amount
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Date != nil {
		in.Date = *p.Date
	}
	if p.ReceiptURL != nil {
		in.ReceiptURL = *p.ReceiptURL
	}
	if p.Tags != nil {
		in.Tags = *p.Tags
	}

	if err := s.apply(e, in); err != nil {
		return nil, err
	}
	return s.save(ctx, actor, e)
}

// Delete は支出をinactiveにする。行はシートに残る。
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	e, err := s.mutable(ctx, actor, id)
	if err != nil {
		return err
	}
	e.Status = model.StatusInactive
	if err := s.repo.Update(ctx, e); err != nil {
		return model.NewUpstreamError("sheets", err)
	}
	slog.Info("expense deleted",
		slog.String("expense_id", id),
		slog.String("user_email", actor),
	)
	return nil
}

// mutable は更新対象の支出を取得する。所属外のグループの支出は存在しないものとして扱う。
func (s *Service) mutable(ctx context.Context, actor, id string) (*model.Expense, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if e == nil || e.Status != model.StatusActive {
		return nil, model.NewNotFoundError("expense", id)
	}
	ids, err := s.groups.GroupIDsFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ids[e.GroupID] {
		return nil, model.NewNotFoundError("expense", id)
	}
	return e, nil
}

func (s *Service) save(ctx context.Context, actor string, e *model.Expense) (*model.Expense, error) {
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	slog.Info("expense updated",
		slog.String("expense_id", e.ID),
		slog.String("user_email", actor),
	)
	return e, nil
}

// apply は入力を検証してeに反映する。monthは常にdateから導出する。
func (s *Service) apply(e *model.Expense, in Input) error {
	if strings.TrimSpace(in.CategoryID) == "" {
		return model.NewValidationError("category_id is required")
	}
	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0 {
		return model.NewValidationError("amount must be a positive number")
	}
	if !model.ValidDate(in.Date) {
		return model.NewValidationError("date must be in YYYY-MM-DD format")
	}
	if len(in.ReceiptURL) > model.MaxReceiptURLLength {
		return model.NewValidationError("receipt_url must be at most %d characters", model.MaxReceiptURLLength)
	}

	description := s.sanitizer.Text(in.Description)
	if len([]rune(description)) > maxDescriptionLength {
		return model.NewValidationError("description must be at most %d characters", maxDescriptionLength)
	}

	e.CategoryID = strings.TrimSpace(in.CategoryID)
	e.GroupID = in.GroupID
	e.BudgetID = strings.TrimSpace(in.BudgetID)
	e.Amount = in.Amount
	e.Description = description
	e.Date = in.Date
	e.Month = model.MonthOf(in.Date)
	e.ReceiptURL = strings.TrimSpace(in.ReceiptURL)
	e.Tags = model.JoinTags(s.sanitizer.Tags(in.Tags))
	return nil
}
