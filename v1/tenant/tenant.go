package tenant

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusInactive  Status = "INACTIVE"
)

var (
	// ErrNotFound is returned when no tenant matches the given id or code.
	ErrNotFound = errors.New("tenant: not found")
	// ErrCodeTaken is returned when creating a tenant with a code that is
	// already registered. Codes are unique and immutable after creation.
	ErrCodeTaken = errors.New("tenant: code already registered")
)

// Tenant is the isolation boundary for a customer's data and locks. Only
// status and contact metadata may change after creation.
type Tenant struct {
	ID           string `gorm:"primaryKey;column:id"`
	Code         string `gorm:"column:code;uniqueIndex"`
	Status       Status `gorm:"column:status;index"`
	ContactName  string `gorm:"column:contact_name"`
	ContactEmail string `gorm:"column:contact_email"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Eligible reports whether the tenant may acquire new locks. Suspended and
// inactive tenants remain auditable but cannot start new mutations.
func (t *Tenant) Eligible() bool {
	return t.Status == StatusActive
}
