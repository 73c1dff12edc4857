package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"org-access-core/backend/internal/audit/domain"
	auditrepo "org-access-core/backend/internal/audit/repository"
)

// SentinelOrgID is the org_id used for audit events that have no org (e.g. sign-in of a user without memberships).
const SentinelOrgID = "_system"

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Event is one audit fact. Metadata is stored as a JSON object.
type Event struct {
	OrgID    string
	UserID   string
	Action   string
	Resource string
	Metadata map[string]string
}

// AuditLogger writes a single audit event. Used by session, membership, user and HTTP code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, ev Event)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
	nowF        func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log, nowF: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, ev Event) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	orgID := ev.OrgID
	if orgID == "" {
		orgID = SentinelOrgID
	}
	var meta string
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err == nil {
			meta = string(b)
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    ev.UserID,
		Action:    ev.Action,
		Resource:  ev.Resource,
		IP:        ip,
		Metadata:  meta,
		CreatedAt: l.nowF().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", ev.Action),
			zap.String("resource", ev.Resource),
			zap.Error(err))
	}
}
