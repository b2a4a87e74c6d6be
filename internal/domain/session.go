package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PermissionType names an independently grantable capability scoped to a session.
type PermissionType string

const (
	PermissionSceneObjects   PermissionType = "scene-objects"
	PermissionSharedPresence PermissionType = "shared-presence"
	PermissionRecording      PermissionType = "recording"
	PermissionSharing        PermissionType = "sharing"
)

// PermissionTypes lists every known permission, in grant-form order.
var PermissionTypes = []PermissionType{
	PermissionSceneObjects,
	PermissionSharedPresence,
	PermissionRecording,
	PermissionSharing,
}

// Permission is a capability grant. A zero ExpiresAt means the grant never
// expires on its own.
type Permission struct {
	Type      PermissionType `json:"type"`
	Granted   bool           `json:"granted"`
	ExpiresAt time.Time      `json:"expires_at,omitzero"`
}

// SecurityLevel classifies how much scrutiny a session's actions receive.
type SecurityLevel string

const (
	SecurityStandard SecurityLevel = "standard"
	SecurityElevated SecurityLevel = "elevated"
)

// Session is an authenticated, time-bounded presence in the engine.
type Session struct {
	ID            uuid.UUID                         `json:"id"`
	UserID        string                            `json:"user_id"`
	DeviceID      string                            `json:"device_id"`
	StartTime     time.Time                         `json:"start_time"`
	LastActivity  time.Time                         `json:"last_activity"`
	Active        bool                              `json:"active"`
	Permissions   map[PermissionType]Permission     `json:"permissions"`
	SecurityLevel SecurityLevel                     `json:"security_level"`
	TerminatedAt  time.Time                         `json:"terminated_at,omitzero"`
}

// Clone returns a deep copy so callers never hold references into store state.
func (s *Session) Clone() *Session {
	c := *s
	c.Permissions = make(map[PermissionType]Permission, len(s.Permissions))
	for k, v := range s.Permissions {
		c.Permissions[k] = v
	}
	return &c
}

// SessionStatus is the result of a session lookup, distinguishing records
// still inside the post-termination grace window from records that are gone.
type SessionStatus string

const (
	SessionActive             SessionStatus = "active"
	SessionRecentlyTerminated SessionStatus = "recently-terminated"
	SessionMissing            SessionStatus = "not-found"
)

// SessionStore persists session records. Implementations must be safe for
// concurrent use; callers never mutate returned sessions in place.
type SessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}
