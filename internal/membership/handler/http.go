// Package handler serves organization membership endpoints.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"org-access-core/backend/internal/cache"
	"org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/membership/service"
	"org-access-core/backend/internal/platform/access"
	"org-access-core/backend/internal/platform/httperr"
	"org-access-core/backend/internal/platform/rbac"
)

var errorRules = []httperr.Rule{
	{Err: service.ErrLastOwner, Status: http.StatusConflict, Code: "last_owner"},
	{Err: service.ErrAlreadyMember, Status: http.StatusConflict, Code: "already_member"},
	{Err: service.ErrMembershipNotFound, Status: http.StatusNotFound, Code: "not_found"},
	{Err: service.ErrUserNotFound, Status: http.StatusUnprocessableEntity, Code: "unknown_user"},
	{Err: service.ErrOrganizationNotFound, Status: http.StatusNotFound, Code: "not_found"},
	{Err: service.ErrInvalidRole, Status: http.StatusBadRequest, Code: "invalid_role"},
	{Err: service.ErrMissingArgument, Status: http.StatusBadRequest, Code: "bad_request"},
}

// Handler serves /v1/organizations/{orgID}/members.
type Handler struct {
	svc   *service.Service
	gate  *access.Gate
	views *cache.Views
}

// New returns a Handler. views may be nil.
func New(svc *service.Service, gate *access.Gate, views *cache.Views) *Handler {
	return &Handler{svc: svc, gate: gate, views: views}
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/organizations/{orgID}/members", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.add)
		r.Patch("/{userID}", h.updateRole)
		r.Delete("/{userID}", h.remove)
	})
}

type memberView struct {
	UserID    string      `json:"user_id"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

type addRequest struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

type roleRequest struct {
	Role domain.Role `json:"role"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	authz, ok := h.gate.Check(w, r, rbac.RequireOrganizationAccess{OrgID: orgID, MinRole: domain.RoleMember})
	if !ok {
		return
	}
	key := cache.NewKey(cache.FamilyTeam, orgID, cache.SubMembers)
	members, err := cache.ReadView(r.Context(), h.views, authz.Session.ID, authz.User.ID, key, func(ctx context.Context) ([]memberView, error) {
		ms, err := h.svc.ListMembers(ctx, orgID)
		if err != nil {
			return nil, err
		}
		out := make([]memberView, 0, len(ms))
		for _, m := range ms {
			out = append(out, toView(m))
		}
		return out, nil
	})
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	authz, ok := h.gate.Check(w, r, rbac.RequireOrganizationAccess{OrgID: orgID, MinRole: domain.RoleOwner})
	if !ok {
		return
	}
	var req addRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, err)
		return
	}
	m, err := h.svc.AddMember(r.Context(), authz.User.ID, orgID, req.UserID, req.Role)
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusCreated, toView(m))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	authz, ok := h.gate.Check(w, r, rbac.RequireOrganizationAccess{OrgID: orgID, MinRole: domain.RoleOwner})
	if !ok {
		return
	}
	var req roleRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, err)
		return
	}
	m, err := h.svc.UpdateRole(r.Context(), authz.User.ID, orgID, chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusOK, toView(m))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	authz, ok := h.gate.Check(w, r, rbac.RequireOrganizationAccess{OrgID: orgID, MinRole: domain.RoleOwner})
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(r.Context(), authz.User.ID, orgID, chi.URLParam(r, "userID")); err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toView(m *domain.Membership) memberView {
	return memberView{UserID: m.UserID, Role: m.Role, CreatedAt: m.CreatedAt}
}
