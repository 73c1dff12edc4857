// Package handler serves the sign-in, sign-out and session endpoints.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"org-access-core/backend/internal/cache"
	"org-access-core/backend/internal/platform/access"
	"org-access-core/backend/internal/platform/httperr"
	"org-access-core/backend/internal/platform/rbac"
	"org-access-core/backend/internal/server/middleware"
	"org-access-core/backend/internal/session/service"
)

var errorRules = []httperr.Rule{
	{Err: service.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: "invalid_credentials"},
	{Err: service.ErrSessionNotFound, Status: http.StatusUnauthorized, Code: "unauthenticated"},
	{Err: service.ErrNotAMember, Status: http.StatusUnprocessableEntity, Code: "not_a_member"},
	{Err: service.ErrInvalidOrgID, Status: http.StatusBadRequest, Code: "bad_request"},
}

// Handler serves /v1/auth and /v1/session.
type Handler struct {
	svc          *service.Service
	gate         *access.Gate
	views        *cache.Views
	secureCookie bool
}

// New returns a Handler. views may be nil.
func New(svc *service.Service, gate *access.Gate, views *cache.Views, secureCookie bool) *Handler {
	return &Handler{svc: svc, gate: gate, views: views, secureCookie: secureCookie}
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/auth/sign-in", h.signIn)
	r.Post("/v1/auth/sign-out", h.signOut)
	r.Get("/v1/session", h.getSession)
	r.Put("/v1/session/active-organization", h.switchOrganization)
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token    string      `json:"token"`
	Session  sessionView `json:"session"`
	Degraded bool        `json:"degraded,omitempty"`
}

type sessionView struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	ActiveOrganizationID *string   `json:"active_organization_id"`
	ExpiresAt            time.Time `json:"expires_at"`
}

type switchRequest struct {
	OrganizationID string `json:"organization_id"`
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, err)
		return
	}
	res, err := h.svc.SignIn(r.Context(), req.Email, req.Password, service.ClientMeta{
		IPAddress: middleware.ClientIP(r.Context()),
		UserAgent: middleware.UserAgent(r.Context()),
	})
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httperr.JSON(w, http.StatusOK, signInResponse{
		Token:    res.Token,
		Session:  toView(res.Session.ID, res.Session.UserID, res.Session.ActiveOrgID, res.Session.ExpiresAt),
		Degraded: res.Degraded,
	})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAuthenticated{})
	if !ok {
		return
	}
	if err := h.svc.SignOut(r.Context(), middleware.CredentialsFromRequest(r).SessionToken); err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	if h.views != nil {
		h.views.Drop(authz.Session.ID)
	}
	http.SetCookie(w, &http.Cookie{Name: middleware.SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: h.secureCookie})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAuthenticated{})
	if !ok {
		return
	}
	key := cache.NewKey(cache.FamilySessions, cache.ScopeCurrent, cache.SubActive)
	token := middleware.CredentialsFromRequest(r).SessionToken
	view, err := cache.ReadView(r.Context(), h.views, authz.Session.ID, authz.User.ID, key, func(ctx context.Context) (sessionView, error) {
		sess, err := h.svc.GetSession(ctx, token)
		if err != nil {
			return sessionView{}, err
		}
		return toView(sess.ID, sess.UserID, sess.ActiveOrgID, sess.ExpiresAt), nil
	})
	if err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	httperr.JSON(w, http.StatusOK, view)
}

func (h *Handler) switchOrganization(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAuthenticated{})
	if !ok {
		return
	}
	var req switchRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, err)
		return
	}
	orgID := strings.TrimSpace(req.OrganizationID)
	token := middleware.CredentialsFromRequest(r).SessionToken
	if err := h.svc.SwitchActiveOrganization(r.Context(), token, orgID); err != nil {
		httperr.Write(w, r, err, errorRules...)
		return
	}
	s := authz.Session
	httperr.JSON(w, http.StatusOK, toView(s.ID, s.UserID, orgID, s.ExpiresAt))
}

func toView(id, userID, activeOrgID string, expiresAt time.Time) sessionView {
	v := sessionView{ID: id, UserID: userID, ExpiresAt: expiresAt}
	if activeOrgID != "" {
		v.ActiveOrganizationID = &activeOrgID
	}
	return v
}
