package audit

import (
	"context"
	stdErrors "errors"
	"time"

	"gorm.io/gorm"

	resverrors "github.com/railstack/go-resv/v1/errors"
)

const (
	defaultTableName = "resv_audit_records"
	defaultOpTimeout = 5 * time.Second
)

// GormStore implements Store on a shared SQL database. The revision read
// and the insert run in one transaction; combined with the entity lock held
// by the caller this makes revision assignment race-free, and the unique
// (entity_type, entity_id, revision) index rejects any write that slips
// through without the lock.
type GormStore struct {
	db        *gorm.DB
	tableName string
	timeout   time.Duration
	codec     Codec
}

// GormOption configures a GormStore.
type GormOption func(*GormStore)

// WithGormTableName sets the audit table name.
func WithGormTableName(name string) GormOption {
	return func(s *GormStore) { s.tableName = name }
}

// WithGormTimeout sets the per-operation timeout for database calls.
func WithGormTimeout(d time.Duration) GormOption {
	return func(s *GormStore) { s.timeout = d }
}

// WithGormCodec sets the codec used to serialize value maps.
func WithGormCodec(c Codec) GormOption {
	return func(s *GormStore) { s.codec = c }
}

// NewGormStore returns a GormStore using the provided GORM DB connection,
// migrating the audit table if needed.
func NewGormStore(db *gorm.DB, opts ...GormOption) (*GormStore, error) {
	s := &GormStore{
		db:        db,
		tableName: defaultTableName,
		timeout:   defaultOpTimeout,
		codec:     JSONCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if !db.Migrator().HasTable(s.tableName) {
		if err := db.Table(s.tableName).AutoMigrate(&Record{}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func mapStorageErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return resverrors.ErrTimeout
	}
	return err
}

func (s *GormStore) encode(rec *Record) error {
	var err error
	if rec.OldRaw, err = s.codec.Marshal(rec.OldValues); err != nil {
		return err
	}
	if rec.NewRaw, err = s.codec.Marshal(rec.NewValues); err != nil {
		return err
	}
	rec.FieldsRaw, err = s.codec.Marshal(rec.ChangedFields)
	return err
}

func (s *GormStore) decode(rec *Record) error {
	if len(rec.OldRaw) > 0 {
		if err := s.codec.Unmarshal(rec.OldRaw, &rec.OldValues); err != nil {
			return err
		}
	}
	if len(rec.NewRaw) > 0 {
		if err := s.codec.Unmarshal(rec.NewRaw, &rec.NewValues); err != nil {
			return err
		}
	}
	if len(rec.FieldsRaw) > 0 {
		return s.codec.Unmarshal(rec.FieldsRaw, &rec.ChangedFields)
	}
	return nil
}

// Append implements Store.Append.
func (s *GormStore) Append(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return mapStorageErr(err)
	}
	if err := s.encode(rec); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.WithContext(cctx).Transaction(func(tx *gorm.DB) error {
		var max int64
		if err := tx.Table(s.tableName).
			Where("entity_type = ? AND entity_id = ?", rec.EntityType, rec.EntityID).
			Select("COALESCE(MAX(revision), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		rec.Revision = max + 1
		return tx.Table(s.tableName).Create(rec).Error
	})
	return mapStorageErr(err)
}

func (s *GormStore) scoped(q *gorm.DB, scope Scope) *gorm.DB {
	if scope.CrossTenant {
		return q
	}
	return q.Where("tenant_id = ?", scope.TenantID)
}

func (s *GormStore) fetch(ctx context.Context, scope Scope, build func(*gorm.DB) *gorm.DB) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapStorageErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var recs []Record
	q := s.scoped(s.db.WithContext(cctx).Table(s.tableName), scope)
	if err := build(q).Find(&recs).Error; err != nil {
		return nil, mapStorageErr(err)
	}
	for i := range recs {
		if err := s.decode(&recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// History implements Store.History.
func (s *GormStore) History(ctx context.Context, scope Scope, entityType string, entityID int64) ([]Record, error) {
	return s.fetch(ctx, scope, func(q *gorm.DB) *gorm.DB {
		return q.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
			Order("revision ASC")
	})
}

// Latest implements Store.Latest.
func (s *GormStore) Latest(ctx context.Context, scope Scope, entityType string, entityID int64) (*Record, error) {
	recs, err := s.fetch(ctx, scope, func(q *gorm.DB) *gorm.DB {
		return q.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
			Order("revision DESC").Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

// ByUser implements Store.ByUser.
func (s *GormStore) ByUser(ctx context.Context, scope Scope, changedBy string) ([]Record, error) {
	return s.fetch(ctx, scope, func(q *gorm.DB) *gorm.DB {
		return q.Where("changed_by = ?", changedBy).Order("changed_at DESC")
	})
}

// ByTimeRange implements Store.ByTimeRange.
func (s *GormStore) ByTimeRange(ctx context.Context, scope Scope, start, end time.Time) ([]Record, error) {
	return s.fetch(ctx, scope, func(q *gorm.DB) *gorm.DB {
		return q.Where("changed_at >= ? AND changed_at < ?", start, end).
			Order("changed_at DESC")
	})
}
