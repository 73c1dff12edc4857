// Package handler serves organization endpoints.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"org-access-core/backend/internal/cache"
	membershipdomain "org-access-core/backend/internal/membership/domain"
	"org-access-core/backend/internal/organization/domain"
	"org-access-core/backend/internal/organization/service"
	"org-access-core/backend/internal/platform/access"
	"org-access-core/backend/internal/platform/httperr"
	"org-access-core/backend/internal/platform/rbac"
)

var errorRules = []httperr.Rule{
	{Err: service.ErrOrganizationNotFound, Status: http.StatusNotFound, Code: "not_found"},
	{Err: service.ErrInvalidOrganization, Status: http.StatusBadRequest, Code: "invalid_organization"},
}

// Handler serves /v1/organizations.
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
	r.Get("/v1/organizations", h.list)
	r.Post("/v1/organizations", h.create)
	r.Delete("/v1/organizations/{orgID}", h.delete)
}

type orgView struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    domain.OrgStatus `json:"status"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
}

type createRequest struct {
	Name string `json:"name"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAuthenticated{})
	if !ok {
		return
	}
	key := cache.NewKey(cache.FamilyOrganizations, cache.ScopeCurrent, cache.SubList)
	orgs, err := cache.ReadView(r.Context(), h.views, authz.Session.ID, authz.User.ID, key, func(ctx context.Context) ([]orgView, error) {
		orgs, err := h.svc.ListForUser(ctx, authz.User.ID)
		if err != nil {
			return nil, err
		}
		out := make([]orgView, 0, len(orgs))
		for _, o := range orgs {
			out = append(out, toView(o))
		}
		return out, nil
	})
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	// The active flag is not cached; it changes with every switch.
	resp := make([]orgView, len(orgs))
	for i, o := range orgs {
		o.Active = o.ID == authz.ActiveOrganizationID
		resp[i] = o
	}
	httperr.JSON(w, http.StatusOK, map[string]any{"organizations": resp})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAuthenticated{})
	if !ok {
		return
	}
	var req createRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, err)
		return
	}
	o, err := h.svc.Create(r.Context(), authz.User.ID, req.Name)
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusCreated, toView(o))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	authz, ok := h.gate.Check(w, r, rbac.RequireOrganizationAccess{OrgID: orgID, MinRole: membershipdomain.RoleOwner})
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), authz.User.ID, orgID); err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toView(o *domain.Org) orgView {
	return orgView{ID: o.ID, Name: o.Name, Status: o.Status, CreatedAt: o.CreatedAt}
}
