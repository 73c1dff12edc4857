// Package httperr writes JSON responses and maps domain errors to HTTP status codes.
package httperr

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"org-access-core/backend/internal/orgcontext"
	"org-access-core/backend/internal/platform/rbac"
)

// maxBodyBytes bounds request bodies read by Decode.
const maxBodyBytes = 1 << 20

// ErrBadRequest is returned by Decode for malformed bodies.
var ErrBadRequest = errors.New("malformed request body")

// Body is the error response document.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Rule maps a sentinel error to a status and code. Handlers pass the rules for their service.
type Rule struct {
	Err    error
	Status int
	Code   string
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("httperr: write response", zap.Error(err))
	}
}

// Decode reads a JSON body into v. Unknown fields are rejected.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}

// Status returns the status and code for err. Guard errors come first so that a Forbidden
// caused by a directory failure stays 403.
func Status(err error, rules ...Rule) (int, string) {
	switch {
	case errors.Is(err, rbac.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, rbac.ErrForbidden):
		if rbac.Reason(err) == rbac.ReasonNoActiveOrganization {
			return http.StatusForbidden, rbac.ReasonNoActiveOrganization
		}
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	}
	for _, rule := range rules {
		if errors.Is(err, rule.Err) {
			return rule.Status, rule.Code
		}
	}
	if errors.Is(err, orgcontext.ErrDirectoryUnavailable) {
		return http.StatusServiceUnavailable, "directory_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// Write maps err and writes the error body. 5xx messages are generic; the cause is logged.
func Write(w http.ResponseWriter, r *http.Request, err error, rules ...Rule) {
	status, code := Status(err, rules...)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zap.L().Error("http handler failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		msg = http.StatusText(status)
	}
	JSON(w, status, Body{Code: code, Message: msg})
}
