package audit

import (
	"errors"
	"time"
)

// Action classifies a recorded mutation.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

var (
	// ErrNotFound is returned when no record matches the query.
	ErrNotFound = errors.New("audit: record not found")
	// ErrInvalidAction is returned for actions outside CREATE/UPDATE/DELETE.
	ErrInvalidAction = errors.New("audit: invalid action")
)

// Record is one entry of the audit trail. Once appended it is never updated
// or deleted. OldValues is empty for CREATE, NewValues is empty for DELETE.
type Record struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	RecordID string `gorm:"column:record_id;uniqueIndex"`

	EntityType string `gorm:"column:entity_type;uniqueIndex:idx_resv_audit_entity_rev,priority:1"`
	EntityID   int64  `gorm:"column:entity_id;uniqueIndex:idx_resv_audit_entity_rev,priority:2"`
	// Revision starts at 1 per entity and increases strictly. The unique
	// index is the storage-level backstop against duplicate assignment.
	Revision int64 `gorm:"column:revision;uniqueIndex:idx_resv_audit_entity_rev,priority:3"`

	Action    Action    `gorm:"column:action;index"`
	ChangedBy string    `gorm:"column:changed_by;index"`
	TenantID  string    `gorm:"column:tenant_id;index"`
	ChangedAt time.Time `gorm:"column:changed_at;index"`

	OldValues     map[string]any `gorm:"-"`
	NewValues     map[string]any `gorm:"-"`
	ChangedFields []string       `gorm:"-"`

	// Serialized forms of the three fields above, written by the store's
	// codec so the record persists atomically as a single row.
	OldRaw    []byte `gorm:"column:old_values"`
	NewRaw    []byte `gorm:"column:new_values"`
	FieldsRaw []byte `gorm:"column:changed_fields"`
}

// Scope restricts audit reads to a tenant. CrossTenant lifts the
// restriction for administrative and support roles.
type Scope struct {
	TenantID    string
	CrossTenant bool
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}
