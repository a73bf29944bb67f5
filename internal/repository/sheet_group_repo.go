package repository

import (
	"context"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/sheets"
)

const (
	TabGroups       = "Groups"
	TabGroupMembers = "GroupMembers"
)

var groupCodec = rowCodec[model.Group]{
	tab:    TabGroups,
	header: []string{"group_id", "name", "description", "owner_email", "status", "created_at", "updated_at"},
	idCol:  "group_id",
	decode: func(r rowReader) *model.Group {
		return &model.Group{
			ID:          r.str("group_id"),
			Name:        r.str("name"),
			Description: r.str("description"),
			OwnerEmail:  r.str("owner_email"),
			Status:      model.ParseStatus(r.str("status")),
			CreatedAt:   r.time("created_at"),
			UpdatedAt:   r.time("updated_at"),
		}
	},
	encode: func(g *model.Group) map[string]string {
		return map[string]string{
			"group_id":    g.ID,
			"name":        g.Name,
			"description": g.Description,
			"owner_email": g.OwnerEmail,
			"status":      string(g.Status),
			"created_at":  formatTime(g.CreatedAt),
			"updated_at":  formatTime(g.UpdatedAt),
		}
	},
	idOf:  func(g *model.Group) string { return g.ID },
	setID: func(g *model.Group, id string) { g.ID = id },
}

var groupMemberCodec = rowCodec[model.GroupMember]{
	tab:    TabGroupMembers,
	header: []string{"group_member_id", "group_id", "user_email", "role", "joined_at", "status"},
	idCol:  "group_member_id",
	decode: func(r rowReader) *model.GroupMember {
		return &model.GroupMember{
			ID:        r.str("group_member_id"),
			GroupID:   r.str("group_id"),
			UserEmail: r.str("user_email"),
			Role:      model.ParseRole(r.str("role")),
			JoinedAt:  r.time("joined_at"),
			Status:    model.ParseStatus(r.str("status")),
		}
	},
	encode: func(m *model.GroupMember) map[string]string {
		return map[string]string{
			"group_member_id": m.ID,
			"group_id":        m.GroupID,
			"user_email":      m.UserEmail,
			"role":            string(m.Role),
			"joined_at":       formatTime(m.JoinedAt),
			"status":          string(m.Status),
		}
	},
	idOf:  func(m *model.GroupMember) string { return m.ID },
	setID: func(m *model.GroupMember, id string) { m.ID = id },
}

// SheetGroupRepo はGroupsタブを使用したグループリポジトリ。
type SheetGroupRepo struct {
	store sheetStore[model.Group]
}

func NewSheetGroupRepo(table sheets.Table) *SheetGroupRepo {
	return &SheetGroupRepo{store: sheetStore[model.Group]{table: table, codec: groupCodec}}
}

func (r *SheetGroupRepo) List(ctx context.Context) ([]*model.Group, error) {
	return r.store.list(ctx)
}

func (r *SheetGroupRepo) FindByID(ctx context.Context, id string) (*model.Group, error) {
	return r.store.find(ctx, id)
}

func (r *SheetGroupRepo) Create(ctx context.Context, group *model.Group) error {
	return r.store.create(ctx, group)
}

func (r *SheetGroupRepo) Update(ctx context.Context, group *model.Group) error {
	return r.store.update(ctx, group)
}

// SheetGroupMemberRepo はGroupMembersタブを使用したメンバーリポジトリ。
type SheetGroupMemberRepo struct {
	store sheetStore[model.GroupMember]
}

func NewSheetGroupMemberRepo(table sheets.Table) *SheetGroupMemberRepo {
	return &SheetGroupMemberRepo{store: sheetStore[model.GroupMember]{table: table, codec: groupMemberCodec}}
}

func (r *SheetGroupMemberRepo) List(ctx context.Context) ([]*model.GroupMember, error) {
	return r.store.list(ctx)
}

func (r *SheetGroupMemberRepo) FindByID(ctx context.Context, id string) (*model.GroupMember, error) {
	return r.store.find(ctx, id)
}

func (r *SheetGroupMemberRepo) Create(ctx context.Context, member *model.GroupMember) error {
	return r.store.create(ctx, member)
}

func (r *SheetGroupMemberRepo) Update(ctx context.Context, member *model.GroupMember) error {
	return r.store.update(ctx, member)
}

var (
	_ GroupRepository       = (*SheetGroupRepo)(nil)
	_ GroupMemberRepository = (*SheetGroupMemberRepo)(nil)
)
