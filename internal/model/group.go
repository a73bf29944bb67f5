package model

import "time"

// Role はグループ内の権限を表す。
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole はシートの値をRoleに変換する。未知の値はmemberとして扱う。
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOwner:
		return RoleOwner
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleMember
	}
}

// CanManage はメンバー管理・グループ編集が可能なロールかを返す。
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Group は支出と予算を共有する単位。
// OwnerEmailは作成後に変更されない。
type Group struct {
	ID          string    `json:"group_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerEmail  string    `json:"owner_email"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember はグループへの所属を表す。脱退は行のinactive化で表現する。
type GroupMember struct {
	ID        string    `json:"group_member_id"`
	GroupID   string    `json:"group_id"`
	UserEmail string    `json:"user_email"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
	Status    Status    `json:"status"`
}

// IsActive は有効なメンバー行かどうかを返す。
func (m *GroupMember) IsActive() bool {
	return m.Status == StatusActive
}
