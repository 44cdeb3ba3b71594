package approval

import (
	"context"
	"sync"
	"time"
)

// RecordStore persists approval records. Resolve must be a compare-and-set
// on the pending status so that concurrent resolutions pick one winner.
type RecordStore interface {
	// Create stores a new record.
	Create(ctx context.Context, record *Record) error

	// Get returns the record for an id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// GetByCallID returns the record for a call id, or ErrNotFound.
	GetByCallID(ctx context.Context, callID string) (*Record, error)

	// Resolve transitions a pending record to a terminal status. Returns
	// ErrNotPending when the record is already terminal.
	Resolve(ctx context.Context, id string, status Status, reason, resolvedBy string, at time.Time) (*Record, error)

	// ListPendingBefore returns pending records whose deadline is at or
	// before the cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Record, error)
}

// MemoryStore is an in-process RecordStore. The sqlite-backed store is the
// production counterpart; this one serves tests and single-shot runs.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	byCallID map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Record),
		byCallID: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.ID] = &cp
	s.byCallID[record.CallID] = record.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *MemoryStore) GetByCallID(ctx context.Context, callID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCallID[callID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.records[id]
	return &cp, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, id string, status Status, reason, resolvedBy string, at time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if record.Status != StatusPending {
		return nil, ErrNotPending
	}
	record.Status = status
	record.Reason = reason
	record.ResolvedBy = resolvedBy
	resolvedAt := at
	record.ResolvedAt = &resolvedAt
	cp := *record
	return &cp, nil
}

func (s *MemoryStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Record
	for _, record := range s.records {
		if record.Status == StatusPending && !record.ExpiresAt.After(cutoff) {
			cp := *record
			due = append(due, &cp)
		}
	}
	return due, nil
}
