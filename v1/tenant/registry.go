package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
	uuid "github.com/hashicorp/go-uuid"
	"gorm.io/gorm"
)

const (
	defaultTableName   = "resv_tenants"
	defaultOpTimeout   = 5 * time.Second
	defaultStatusTTL   = 30 * time.Second
	statusCacheEntries = 1 << 14
)

// Registry is the administrative boundary for tenants: creation, status
// transitions and contact updates. Reads on the lock hot path (eligibility
// checks) are served from a ristretto cache invalidated on every status
// transition, so a suspension takes effect within statusTTL at worst on
// other instances and immediately on the instance that applied it.
type Registry struct {
	db        *gorm.DB
	tableName string
	timeout   time.Duration
	statusTTL time.Duration
	cache     *ristretto.Cache
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTableName sets the tenants table name.
func WithTableName(name string) RegistryOption {
	return func(r *Registry) { r.tableName = name }
}

// WithTimeout sets the per-operation database timeout.
func WithTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.timeout = d }
}

// WithStatusTTL bounds how long a cached eligibility result may be served.
func WithStatusTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.statusTTL = d }
}

// NewRegistry returns a Registry backed by db, migrating the tenants table
// if needed.
func NewRegistry(db *gorm.DB, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		db:        db,
		tableName: defaultTableName,
		timeout:   defaultOpTimeout,
		statusTTL: defaultStatusTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !db.Migrator().HasTable(r.tableName) {
		if err := db.Table(r.tableName).AutoMigrate(&Tenant{}); err != nil {
			return nil, err
		}
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: statusCacheEntries * 10,
		MaxCost:     statusCacheEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

func (r *Registry) table(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.db.WithContext(cctx).Table(r.tableName), cancel
}

// Create registers a new tenant. A missing id is generated; the status
// defaults to ACTIVE. The code must be unused.
func (r *Registry) Create(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		id, err := uuid.GenerateUUID()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = StatusActive
	}

	tbl, cancel := r.table(ctx)
	defer cancel()
	var count int64
	if err := tbl.Where("code = ?", t.Code).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrCodeTaken
	}
	return tbl.Create(t).Error
}

// Get returns the tenant with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*Tenant, error) {
	tbl, cancel := r.table(ctx)
	defer cancel()
	var t Tenant
	err := tbl.First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByCode returns the tenant with the given code.
func (r *Registry) GetByCode(ctx context.Context, code string) (*Tenant, error) {
	tbl, cancel := r.table(ctx)
	defer cancel()
	var t Tenant
	err := tbl.First(&t, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Activate transitions the tenant to ACTIVE.
func (r *Registry) Activate(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusActive)
}

// Suspend transitions the tenant to SUSPENDED. Existing audit history stays
// readable; new lock acquisitions are refused.
func (r *Registry) Suspend(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusSuspended)
}

// Deactivate transitions the tenant to INACTIVE.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, StatusInactive)
}

func (r *Registry) setStatus(ctx context.Context, id string, s Status) error {
	tbl, cancel := r.table(ctx)
	defer cancel()
	res := tbl.Where("id = ?", id).Update("status", s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	r.cache.Del(id)
	r.cache.Wait()
	return nil
}

// UpdateContact updates the tenant's contact metadata, the only mutable
// fields besides status.
func (r *Registry) UpdateContact(ctx context.Context, id, name, email string) error {
	tbl, cancel := r.table(ctx)
	defer cancel()
	res := tbl.Where("id = ?", id).Updates(map[string]any{
		"contact_name":  name,
		"contact_email": email,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EligibleForLock reports whether the tenant may acquire new locks, serving
// repeated checks from the status cache.
func (r *Registry) EligibleForLock(ctx context.Context, id string) (bool, error) {
	if v, ok := r.cache.Get(id); ok {
		status, _ := v.(Status)
		return status == StatusActive, nil
	}
	t, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	r.cache.SetWithTTL(id, t.Status, 1, r.statusTTL)
	r.cache.Wait()
	return t.Eligible(), nil
}

// Close releases the status cache.
func (r *Registry) Close() {
	r.cache.Close()
}
