// Package telemetry mirrors security-relevant facts (sign-in, switches, denials) to an event sink such as OTel Logs.
package telemetry

import (
	"context"
	"time"
)

// Event is a single security fact. Attributes carry small string values only.
type Event struct {
	Name       string
	OrgID      string
	UserID     string
	SessionID  string
	Resource   string
	Attributes map[string]string
	At         time.Time
}

// EventEmitter emits events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
