// Package handler serves the admin user endpoints.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"org-access-core/backend/internal/cache"
	"org-access-core/backend/internal/platform/access"
	"org-access-core/backend/internal/platform/httperr"
	"org-access-core/backend/internal/platform/rbac"
	"org-access-core/backend/internal/user/domain"
	"org-access-core/backend/internal/user/service"
)

var errorRules = []httperr.Rule{
	{Err: service.ErrUserNotFound, Status: http.StatusNotFound, Code: "not_found"},
	{Err: service.ErrInvalidRole, Status: http.StatusBadRequest, Code: "invalid_role"},
}

// Handler serves /v1/admin.
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
	r.Get("/v1/admin/users/{userID}", h.getUser)
	r.Patch("/v1/admin/users/{userID}/role", h.changeRole)
	r.Get("/v1/admin/stats", h.stats)
}

type userView struct {
	ID     string            `json:"id"`
	Email  string            `json:"email"`
	Name   string            `json:"name"`
	Role   domain.Role       `json:"role"`
	Status domain.UserStatus `json:"status"`
}

func toView(u *domain.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Status: u.Status}
}

type roleRequest struct {
	Role domain.Role `json:"role"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAdmin())
	if !ok {
		return
	}
	var req roleRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, err)
		return
	}
	u, err := h.svc.ChangeRole(r.Context(), authz.User.ID, chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusOK, toView(u))
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gate.Check(w, r, rbac.RequireAdmin()); !ok {
		return
	}
	u, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusOK, toView(u))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAdmin())
	if !ok {
		return
	}
	key := cache.NewKey(cache.FamilyAdmin, cache.ScopeCurrent, cache.SubStats)
	st, err := cache.ReadView(r.Context(), h.views, authz.Session.ID, authz.User.ID, key, func(ctx context.Context) (*service.Stats, error) {
		return h.svc.Stats(ctx)
	})
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusOK, st)
}
