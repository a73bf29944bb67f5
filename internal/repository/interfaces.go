// Package repository はスプレッドシートの各タブに対する永続化インターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
)

// UserRepository はUsersタブ（ホワイトリスト）の永続化インターフェース。
type UserRepository interface {
	// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字を区別する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Update はメールアドレスが一致する行を上書き更新する。
	Update(ctx context.Context, user *model.User) error
}

// CategoryRepository はCategoriesタブの読み取りインターフェース。
type CategoryRepository interface {
	List(ctx context.Context) ([]*model.Category, error)
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)
}

// BudgetRepository はBudgetsタブの永続化インターフェース。
type BudgetRepository interface {
	// List はinactiveを含む全予算を挿入順で返す。
	List(ctx context.Context) ([]*model.Budget, error)
	// FindByID は指定IDの予算を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Budget, error)
	// Create はIDが空であれば衝突しないIDを採番して追加する。
	Create(ctx context.Context, budget *model.Budget) error
	Update(ctx context.Context, budget *model.Budget) error
}

// ExpenseRepository はExpensesタブの永続化インターフェース。
type ExpenseRepository interface {
	// List はinactiveを含む全支出を挿入順で返す。
	List(ctx context.Context) ([]*model.Expense, error)
	// FindByID は指定IDの支出を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Expense, error)
	// Create はIDが空であれば衝突しないIDを採番して追加する。
	Create(ctx context.Context, expense *model.Expense) error
	Update(ctx context.Context, expense *model.Expense) error
}

// GroupRepository はGroupsタブの永続化インターフェース。
type GroupRepository interface {
	List(ctx context.Context) ([]*model.Group, error)
	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Group, error)
	Create(ctx context.Context, group *model.Group) error
	Update(ctx context.Context, group *model.Group) error
}

// GroupMemberRepository はGroupMembersタブの永続化インターフェース。
type GroupMemberRepository interface {
	List(ctx context.Context) ([]*model.GroupMember, error)
	// FindByID は指定IDのメンバー行を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.GroupMember, error)
	Create(ctx context.Context, member *model.GroupMember) error
	Update(ctx context.Context, member *model.GroupMember) error
}

// AccessRequestRepository は"Access Request"タブの永続化インターフェース。
type AccessRequestRepository interface {
	// Create は申請を追加する。タブが無ければヘッダー付きで作成する。
	Create(ctx context.Context, req *model.AccessRequest) error
	// FindPendingByEmail は未処理の申請を検索する。見つからない場合はnilを返す。
	FindPendingByEmail(ctx context.Context, email string) (*model.AccessRequest, error)
}
