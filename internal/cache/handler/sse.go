// Package handler streams cache invalidations to browser clients as server-sent events.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"org-access-core/backend/internal/cache"
	"org-access-core/backend/internal/platform/access"
	"org-access-core/backend/internal/platform/rbac"
)

// StreamPath is the invalidation stream route.
const StreamPath = "/v1/cache/invalidations"

const defaultKeepAlive = 25 * time.Second

// Handler serves the invalidation stream.
type Handler struct {
	hub       *cache.Hub
	gate      *access.Gate
	keepAlive time.Duration
	log       *zap.Logger
}

// New returns a Handler.
func New(hub *cache.Hub, gate *access.Gate, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{hub: hub, gate: gate, keepAlive: defaultKeepAlive, log: log}
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get(StreamPath, h.stream)
}

// stream writes one "invalidate" event per hub event addressed to the caller's session until
// the client disconnects. A reset event tells the client to drop every cached view. The session
// is re-checked on every keep-alive; once it is no longer valid the stream sends a reset and ends.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	authz, ok := h.gate.Check(w, r, rbac.RequireAuthenticated{})
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.hub.Subscribe(authz.Session.ID, authz.User.ID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 2000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := h.gate.Recheck(r, rbac.RequireAuthenticated{}); err != nil {
				h.log.Debug("cache: closing invalidation stream",
					zap.String("session_id", authz.Session.ID), zap.String("reason", rbac.Reason(err)))
				_ = h.write(w, flusher, cache.ResetEvent())
				return
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if err := h.write(w, flusher, ev); err != nil {
				return
			}
		}
	}
}

// write sends ev as one SSE message. Encoding failures are logged and skipped.
func (h *Handler) write(w http.ResponseWriter, flusher http.Flusher, ev cache.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("cache: encode event", zap.String("mutation", ev.Mutation), zap.Error(err))
		return nil
	}
	name := "invalidate"
	if ev.Reset() {
		name = "reset"
	}
	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, name, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
