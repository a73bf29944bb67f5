// Package group はグループとメンバーシップの管理、およびアクセス制御を提供する。
//
// 支出・予算の各サービスは、読み書きの前に必ずGroupIDsForまたはRequireMemberで
// 操作者の所属グループを解決する。
package group

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/expenfyre/internal/model"
	"github.com/hitoshi/expenfyre/internal/repository"
)

const (
	defaultGroupName        = "Personal"
	defaultGroupDescription = "Personal expenses"
	maxGroupNameLength      = 100
)

// Sanitizer はユーザー入力のテキストを無害化する。
type Sanitizer interface {
	Text(raw string) string
}

type passthrough struct{}

func (passthrough) Text(raw string) string { return strings.TrimSpace(raw) }

// Summary は一覧表示用に操作者のロールとメンバー数を付与したグループ。
type Summary struct {
	*model.Group
	Role        model.Role `json:"role"`
	MemberCount int        `json:"member_count"`
}

// Patch はグループの部分更新。nilのフィールドは変更しない。
type Patch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Service はグループ管理のサービス層。
type Service struct {
	groups    repository.GroupRepository
	members   repository.GroupMemberRepository
	users     repository.UserRepository
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。sanitizerがnilの場合は空白の除去のみ行う。
func NewService(
	groups repository.GroupRepository,
	members repository.GroupMemberRepository,
	users repository.UserRepository,
	sanitizer Sanitizer,
) *Service {
	if sanitizer == nil {
		sanitizer = passthrough{}
	}
	return &Service{
		groups:    groups,
		members:   members,
		users:     users,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// activeMemberships は操作者の有効なメンバー行をグループIDで引けるようにして返す。
func (s *Service) activeMemberships(ctx context.Context, actor string) (map[string]*model.GroupMember, []*model.GroupMember, error) {
	all, err := s.members.List(ctx)
	if err != nil {
		return nil, nil, model.NewUpstreamError("sheets", err)
	}
	mine := make(map[string]*model.GroupMember)
	for _, m := range all {
		if m.UserEmail == actor && m.IsActive() {
			mine[m.GroupID] = m
		}
	}
	return mine, all, nil
}

// List は操作者が所属する有効なグループを返す。
func (s *Service) List(ctx context.Context, actor string) ([]*Summary, error) {
	mine, all, err := s.activeMemberships(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(mine) == 0 {
		return []*Summary{}, nil
	}

	counts := make(map[string]int)
	for _, m := range all {
		if m.IsActive() {
			counts[m.GroupID]++
		}
	}

	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}

	out := make([]*Summary, 0, len(mine))
	for _, g := range groups {
		m, ok := mine[g.ID]
		if !ok || g.Status != model.StatusActive {
			continue
		}
		out = append(out, &Summary{Group: g, Role: m.Role, MemberCount: counts[g.ID]})
	}
	return out, nil
}

// GroupIDsFor は操作者が閲覧できるグループIDの集合を返す。
func (s *Service) GroupIDsFor(ctx context.Context, actor string) (map[string]bool, error) {
	summaries, err := s.List(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(summaries))
	for _, g := range summaries {
		ids[g.ID] = true
	}
	return ids, nil
}

// DefaultGroupFor は操作者の既定グループを返す。
// 既定グループが無効な場合は所属グループの先頭を使う。所属がなければVALIDATION_ERROR。
func (s *Service) DefaultGroupFor(ctx context.Context, actor string) (string, error) {
	summaries, err := s.List(ctx, actor)
	if err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", model.NewValidationError("group_id is required")
	}

	user, err := s.users.FindByEmail(ctx, actor)
	if err != nil {
		return "", model.NewUpstreamError("sheets", err)
	}
	if user != nil && user.DefaultGroupID != "" {
		for _, g := range summaries {
			if g.ID == user.DefaultGroupID {
				return g.ID, nil
			}
		}
	}
	return summaries[0].ID, nil
}

// RequireMember は操作者がグループの有効なメンバーであることを確認し、メンバー行を返す。
// グループが存在しない、または無効化されている場合はNOT_FOUND、非メンバーはFORBIDDEN。
func (s *Service) RequireMember(ctx context.Context, actor, groupID string) (*model.GroupMember, error) {
	g, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if g == nil || g.Status != model.StatusActive {
		return nil, model.NewNotFoundError("group", groupID)
	}

	mine, _, err := s.activeMemberships(ctx, actor)
	if err != nil {
		return nil, err
	}
	m, ok := mine[groupID]
	if !ok {
		return nil, model.NewForbiddenError("You are not a member of this group")
	}
	return m, nil
}

// Create はグループを作成し、作成者をownerとして登録する。
func (s *Service) Create(ctx context.Context, actor, name, description string) (*model.Group, error) {
	name = s.sanitizer.Text(name)
	if name == "" {
		return nil, model.NewValidationError("Group name is required")
	}
	if len([]rune(name)) > maxGroupNameLength {
		return nil, model.NewValidationError("Group name must be at most %d characters", maxGroupNameLength)
	}
	return s.create(ctx, actor, name, s.sanitizer.Text(description))
}

func (s *Service) create(ctx context.Context, owner, name, description string) (*model.Group, error) {
	now := s.now().UTC()
	g := &model.Group{
		Name:        name,
		Description: description,
		OwnerEmail:  owner,
		Status:      model.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}

	m := &model.GroupMember{
		GroupID:   g.ID,
		UserEmail: owner,
		Role:      model.RoleOwner,
		JoinedAt:  now,
		Status:    model.StatusActive,
	}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}

	slog.Info("group created",
		slog.String("group_id", g.ID),
		slog.String("user_email", owner),
	)
	return g, nil
}

// Update はグループ名と説明を更新する。ownerとadminのみ可能。
func (s *Service) Update(ctx context.Context, actor, groupID string, patch Patch) (*model.Group, error) {
	m, err := s.RequireMember(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	if !m.Role.CanManage() {
		return nil, model.NewForbiddenError("Only the owner or an admin can update this group")
	}

	g, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if g == nil {
		return nil, model.NewNotFoundError("group", groupID)
	}

	if patch.Name != nil {
		name := s.sanitizer.Text(*patch.Name)
		if name == "" {
			return nil, model.NewValidationError("Group name cannot be empty")
		}
		if len([]rune(name)) > maxGroupNameLength {
			return nil, model.NewValidationError("Group name must be at most %d characters", maxGroupNameLength)
		}
		g.Name = name
	}
	if patch.Description != nil {
		g.Description = s.sanitizer.Text(*patch.Description)
	}
	g.UpdatedAt = s.now().UTC()

	if err := s.groups.Update(ctx, g); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	return g, nil
}

// Delete はグループと全メンバー行を無効化する。ownerのみ可能。
func (s *Service) Delete(ctx context.Context, actor, groupID string) error {
	m, err := s.RequireMember(ctx, actor, groupID)
	if err != nil {
		return err
	}
	if m.Role != model.RoleOwner {
		return model.NewForbiddenError("Only the group owner can delete this group")
	}

	g, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return model.NewUpstreamError("sheets", err)
	}
	if g.OwnerEmail != actor {
		return model.NewForbiddenError("Only the group owner can delete this group")
	}

	g.Status = model.StatusInactive
	g.UpdatedAt = s.now().UTC()
	if err := s.groups.Update(ctx, g); err != nil {
		return model.NewUpstreamError("sheets", err)
	}

	all, err := s.members.List(ctx)
	if err != nil {
		return model.NewUpstreamError("sheets", err)
	}
	for _, member := range all {
		if member.GroupID != groupID || !member.IsActive() {
			continue
		}
		member.Status = model.StatusInactive
		if err := s.members.Update(ctx, member); err != nil {
			return model.NewUpstreamError("sheets", err)
		}
	}

	slog.Info("group deleted",
		slog.String("group_id", groupID),
		slog.String("user_email", actor),
	)
	return nil
}

// Members はグループの有効なメンバーを返す。メンバーのみ閲覧可能。
func (s *Service) Members(ctx context.Context, actor, groupID string) ([]*model.GroupMember, error) {
	if _, err := s.RequireMember(ctx, actor, groupID); err != nil {
		return nil, err
	}

	all, err := s.members.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	out := make([]*model.GroupMember, 0)
	for _, m := range all {
		if m.GroupID == groupID && m.IsActive() {
			out = append(out, m)
		}
	}
	return out, nil
}

// AddMember はホワイトリスト登録済みのユーザーをグループに追加する。
// 以前に脱退した行があれば再有効化する。ownerロールは付与できない。
func (s *Service) AddMember(ctx context.Context, actor, groupID, email string, role model.Role) (*model.GroupMember, error) {
	m, err := s.RequireMember(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	if !m.Role.CanManage() {
		return nil, model.NewForbiddenError("Only the owner or an admin can add members")
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, model.NewValidationError("Email is required")
	}
	if role == "" {
		role = model.RoleMember
	}
	if role == model.RoleOwner {
		return nil, model.NewValidationError("A group can only have one owner")
	}
	if role != model.RoleAdmin && role != model.RoleMember {
		return nil, model.NewValidationError("Invalid role: %s", role)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	if user == nil {
		return nil, model.NewValidationError("%s is not a registered user", email)
	}

	all, err := s.members.List(ctx)
	if err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}
	for _, existing := range all {
		if existing.GroupID != groupID || existing.UserEmail != email {
			continue
		}
		if existing.IsActive() {
			return nil, model.NewValidationError("%s is already a member of this group", email)
		}
		existing.Status = model.StatusActive
		existing.Role = role
		existing.JoinedAt = s.now().UTC()
		if err := s.members.Update(ctx, existing); err != nil {
			return nil, model.NewUpstreamError("sheets", err)
		}
		return existing, nil
	}

	added := &model.GroupMember{
		GroupID:   groupID,
		UserEmail: email,
		Role:      role,
		JoinedAt:  s.now().UTC(),
		Status:    model.StatusActive,
	}
	if err := s.members.Create(ctx, added); err != nil {
		return nil, model.NewUpstreamError("sheets", err)
	}

	slog.Info("group member added",
		slog.String("group_id", groupID),
		slog.String("member_email", email),
		slog.String("user_email", actor),
	)
	return added, nil
}

// RemoveMember はメンバー行を無効化する。ownerとadmin、または本人のみ可能。
// ownerは削除できない。
func (s *Service) RemoveMember(ctx context.Context, actor, groupID, email string) error {
	m, err := s.RequireMember(ctx, actor, groupID)
	if err != nil {
		return err
	}
	if !m.Role.CanManage() && actor != email {
		return model.NewForbiddenError("Only the owner or an admin can remove members")
	}

	all, err := s.members.List(ctx)
	if err != nil {
		return model.NewUpstreamError("sheets", err)
	}
	for _, target := range all {
		if target.GroupID != groupID || target.UserEmail != email || !target.IsActive() {
			continue
		}
		if target.Role == model.RoleOwner {
			return model.NewForbiddenError("The group owner cannot be removed")
		}
		target.Status = model.StatusInactive
		if err := s.members.Update(ctx, target); err != nil {
			return model.NewUpstreamError("sheets", err)
		}
		slog.Info("group member removed",
			slog.String("group_id", groupID),
			slog.String("member_email", email),
			slog.String("user_email", actor),
		)
		return nil
	}
	return model.NewNotFoundError("member", email)
}

// EnsureDefaultGroup はユーザーの個人用グループのIDを返す。
// 既定グループが有効ならそれを、なければ本人がownerの有効なグループを、
// それもなければ新規作成する。
func (s *Service) EnsureDefaultGroup(ctx context.Context, user *model.User) (string, error) {
	mine, _, err := s.activeMemberships(ctx, user.Email)
	if err != nil {
		return "", err
	}

	if user.DefaultGroupID != "" {
		if _, ok := mine[user.DefaultGroupID]; ok {
			g, err := s.groups.FindByID(ctx, user.DefaultGroupID)
			if err != nil {
				return "", model.NewUpstreamError("sheets", err)
			}
			if g != nil && g.Status == model.StatusActive {
				return g.ID, nil
			}
		}
	}

	groups, err := s.groups.List(ctx)
	if err != nil {
		return "", model.NewUpstreamError("sheets", err)
	}
	for _, g := range groups {
		if m, ok := mine[g.ID]; ok && m.Role == model.RoleOwner && g.Status == model.StatusActive {
			return g.ID, nil
		}
	}

	g, err := s.create(ctx, user.Email, defaultGroupName, defaultGroupDescription)
	if err != nil {
		return "", fmt.Errorf("failed to create default group: %w", err)
	}
	return g.ID, nil
}
