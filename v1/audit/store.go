package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists audit records and answers history queries. Append assigns
// the next revision and writes the record in one atomic step; callers must
// already hold the entity's lock (or rely on storage-side atomicity) so two
// concurrent appends for the same entity cannot race on the revision.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	// History returns the entity's records ordered by revision ascending.
	History(ctx context.Context, scope Scope, entityType string, entityID int64) ([]Record, error)
	// Latest returns the entity's highest-revision record or ErrNotFound.
	Latest(ctx context.Context, scope Scope, entityType string, entityID int64) (*Record, error)
	// ByUser returns records changed by the given identity, newest first.
	ByUser(ctx context.Context, scope Scope, changedBy string) ([]Record, error)
	// ByTimeRange returns records with start <= changedAt < end, newest first.
	ByTimeRange(ctx context.Context, scope Scope, start, end time.Time) ([]Record, error)
}

type entityKey struct {
	entityType string
	entityID   int64
}

// InMemoryStore implements Store with process-local state, for tests and
// single-node development.
type InMemoryStore struct {
	mu       sync.Mutex
	byEntity map[entityKey][]Record
	all      []Record
}

// NewInMemoryStore returns a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEntity: make(map[entityKey][]Record)}
}

// Append implements Store.Append.
func (s *InMemoryStore) Append(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{rec.EntityType, rec.EntityID}
	seq := s.byEntity[key]
	var max int64
	if n := len(seq); n > 0 {
		max = seq[n-1].Revision
	}
	rec.Revision = max + 1
	s.byEntity[key] = append(seq, *rec)
	s.all = append(s.all, *rec)
	return nil
}

func (s Scope) covers(rec *Record) bool {
	return s.CrossTenant || rec.TenantID == s.TenantID
}

// History implements Store.History.
func (s *InMemoryStore) History(ctx context.Context, scope Scope, entityType string, entityID int64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.byEntity[entityKey{entityType, entityID}] {
		if scope.covers(&rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Latest implements Store.Latest.
func (s *InMemoryStore) Latest(ctx context.Context, scope Scope, entityType string, entityID int64) (*Record, error) {
	recs, err := s.History(ctx, scope, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	rec := recs[len(recs)-1]
	return &rec, nil
}

// ByUser implements Store.ByUser.
func (s *InMemoryStore) ByUser(ctx context.Context, scope Scope, changedBy string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.all {
		if rec.ChangedBy == changedBy && scope.covers(&rec) {
			out = append(out, rec)
		}
	}
	sortByChangedAtDesc(out)
	return out, nil
}

// ByTimeRange implements Store.ByTimeRange.
func (s *InMemoryStore) ByTimeRange(ctx context.Context, scope Scope, start, end time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.all {
		if !rec.ChangedAt.Before(start) && rec.ChangedAt.Before(end) && scope.covers(&rec) {
			out = append(out, rec)
		}
	}
	sortByChangedAtDesc(out)
	return out, nil
}

func sortByChangedAtDesc(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].ChangedAt.After(recs[j].ChangedAt)
	})
}
