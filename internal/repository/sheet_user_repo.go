package repository

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

// TabUsers はホワイトリストを兼ねるユーザータブ名。
const TabUsers = "Users"

var userCodec = rowCodec[model.User]{
	tab:    TabUsers,
	header: []string{"id", "name", "email", "picture", "created_at", "default_group_id"},
	idCol:  "email",
	decode: func(r rowReader) *model.User {
		return &model.User{
			ID:             r.str("id"),
			Name:           r.str("name"),
			Email:          r.str("email"),
			Picture:        r.str("picture"),
			CreatedAt:      r.time("created_at"),
			DefaultGroupID: r.str("default_group_id"),
		}
	},
	encode: func(u *model.User) map[string]string {
		return map[string]string{
			"id":               u.ID,
			"name":             u.Name,
			"email":            u.Email,
			"picture":          u.Picture,
			"created_at":       formatTime(u.CreatedAt),
			"default_group_id": u.DefaultGroupID,
		}
	},
	idOf: func(u *model.User) string { return u.Email },
}

// SheetUserRepo はUsersタブを使用したユーザーリポジトリ。
type SheetUserRepo struct {
	store sheetStore[model.User]
}

// NewSheetUserRepo はSheetUserRepoを生成する。
func NewSheetUserRepo(table sheets.Table) *SheetUserRepo {
	return &SheetUserRepo{store: sheetStore[model.User]{table: table, codec: userCodec}}
}

// FindByEmail はメールアドレスの完全一致でユーザーを検索する。
func (r *SheetUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.store.find(ctx, email)
}

// Update はメールアドレスが一致する行を上書きする。
func (r *SheetUserRepo) Update(ctx context.Context, user *model.User) error {
	return r.store.update(ctx, user)
}

var _ UserRepository = (*SheetUserRepo)(nil)
