package domain

import (
	"errors"
	"strings"
	"time"
)

// maxNameLen bounds organization display names.
const maxNameLen = 120

// Org represents an organization (tenant boundary).
type Org struct {
	ID        string
	Name      string
	Status    OrgStatus
	CreatedAt time.Time
}

type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
)

// Validate normalizes and validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return errors.New("name is required")
	}
	if len(o.Name) > maxNameLen {
		return errors.New("name must be at most 120 characters")
	}
	if o.Status == "" {
		o.Status = OrgStatusActive
	}
	return nil
}
