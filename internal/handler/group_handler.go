package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/expenfyre/internal/group"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// GroupService はグループハンドラーが必要とするサービスインターフェース。
type GroupService interface {
	List(ctx context.Context, actor string) ([]*group.Summary, error)
	Create(ctx context.Context, actor, name, description string) (*model.Group, error)
	Update(ctx context.Context, actor, groupID string, patch group.Patch) (*model.Group, error)
	Delete(ctx context.Context, actor, groupID string) error
	Members(ctx context.Context, actor, groupID string) ([]*model.GroupMember, error)
	AddMember(ctx context.Context, actor, groupID, email string, role model.Role) (*model.GroupMember, error)
	RemoveMember(ctx context.Context, actor, groupID, email string) error
}

// GroupHandler はグループとメンバー管理のHTTPハンドラー。
type GroupHandler struct {
	service GroupService
}

// NewGroupHandler はGroupHandlerを生成する。
func NewGroupHandler(service GroupService) *GroupHandler {
	return &GroupHandler{service: service}
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// List は所属グループの一覧を返す。
// GET /api/groups
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	groups, err := h.service.List(r.Context(), actor)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, groups)
}

// Create はグループを作成し、操作者をオーナーとして登録する。
// POST /api/groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.service.Create(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, g)
}

// Update はグループ名と説明を更新する。
// PATCH /api/groups/{id}
func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var patch group.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	g, err := h.service.Update(r.Context(), actor, pathParam(r, "id"), patch)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, g)
}

// Delete はグループを削除する。オーナーのみ。
// DELETE /api/groups/{id}
func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, pathParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Group deleted successfully")
}

// Members はグループのメンバー一覧を返す。
// GET /api/groups/{id}/members
func (h *GroupHandler) Members(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	members, err := h.service.Members(r.Context(), actor, pathParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, members)
}

// AddMember はメンバーを追加する。
// POST /api/groups/{id}/members
func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.service.AddMember(r.Context(), actor, pathParam(r, "id"), req.Email, model.Role(req.Role))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, m)
}

// RemoveMember はメンバーを外す。自分自身の脱退も含む。
// DELETE /api/groups/{id}/members/{email}
func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), actor, pathParam(r, "id"), pathParam(r, "email")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteMessage(w, http.StatusOK, "Member removed successfully")
}
