// Package correlation maintains the bidirectional mapping between internally
// generated identities and provider-assigned external identities, together
// with the last synchronized status per record. It is the single source of
// truth consulted before every status-returning remote call, so polling and
// webhook reconciliation always update the same record.
package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	errspkg "github.com/docuflow/docuflow/internal/runtime/errors"
	metricspkg "github.com/docuflow/docuflow/internal/runtime/metrics"
)

// Status is the last known provider-reported state of a correlated entity.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusCompleted Status = "COMPLETED"
	StatusDeclined  Status = "DECLINED"
	StatusVoided    Status = "VOIDED"
)

// Record correlates one internal identity with its provider-assigned external
// identity. InternalID is assigned before any remote call; ExternalID is set
// once, after the remote create succeeds, and is immutable from then on.
type Record struct {
	InternalID      string    `json:"internal_id"`
	ExternalID      string    `json:"external_id,omitempty"`
	Provider        string    `json:"provider"`
	LastKnownStatus Status    `json:"last_known_status"`
	LastSyncedAt    time.Time `json:"last_synced_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the correlation record contract. Implementations must keep the
// same invariants regardless of backing storage: one record per internal
// id, immutable external ids, and observation-time last-write-wins status
// updates.
type Store interface {
	// CreatePending inserts a record with no external id yet. Fails with
	// ErrDuplicateInternalID when a record already exists.
	CreatePending(ctx context.Context, internalID, provider string) error

	// AttachExternalID sets the external id on an existing pending record.
	// Fails with ErrNotFound, ErrAlreadyAttached, or ErrExternalIDInUse.
	AttachExternalID(ctx context.Context, internalID, externalID string) error

	// ResolveExternal returns the external id recorded for an internal id.
	ResolveExternal(ctx context.Context, internalID string) (string, error)

	// ResolveInternal returns the internal id recorded for an external id.
	ResolveInternal(ctx context.Context, externalID string) (string, error)

	// Get returns a copy of the full record.
	Get(ctx context.Context, internalID string) (Record, error)

	// UpdateStatus applies a status observation. The update is applied only
	// when observedAt is not older than the stored LastSyncedAt; stale
	// observations return applied=false with no error, so out-of-order
	// webhook and polling results are tolerated.
	UpdateStatus(ctx context.Context, internalID string, status Status, observedAt time.Time) (applied bool, err error)

	// Remove deletes both directions of the mapping.
	Remove(ctx context.Context, internalID string) error
}

// MemoryStore is the in-process Store implementation. Sufficient for a
// single-process deployment; durability is a deployment concern.
type MemoryStore struct {
	mu         sync.RWMutex
	byInternal map[string]*Record
	byExternal map[string]string

	metrics *metricspkg.Metrics
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory correlation store.
func NewMemoryStore(m *metricspkg.Metrics) *MemoryStore {
	return &MemoryStore{
		byInternal: make(map[string]*Record),
		byExternal: make(map[string]string),
		metrics:    m,
		now:        time.Now,
	}
}

func (s *MemoryStore) CreatePending(_ context.Context, internalID, provider string) error {
	if internalID == "" {
		return fmt.Errorf("%w: empty internal id", errspkg.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byInternal[internalID]; ok {
		return fmt.Errorf("%w: %q", errspkg.ErrDuplicateInternalID, internalID)
	}
	s.byInternal[internalID] = &Record{
		InternalID:      internalID,
		Provider:        provider,
		LastKnownStatus: StatusPending,
		CreatedAt:       s.now().UTC(),
	}
	s.metrics.SetCorrelationRecords(len(s.byInternal))
	return nil
}

func (s *MemoryStore) AttachExternalID(_ context.Context, internalID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byInternal[internalID]
	if !ok {
		return fmt.Errorf("%w: %q", errspkg.ErrNotFound, internalID)
	}
	if rec.ExternalID != "" {
		return fmt.Errorf("%w: %q already has external id %q", errspkg.ErrAlreadyAttached, internalID, rec.ExternalID)
	}
	if owner, ok := s.byExternal[externalID]; ok {
		return fmt.Errorf("%w: %q belongs to %q", errspkg.ErrExternalIDInUse, externalID, owner)
	}
	rec.ExternalID = externalID
	s.byExternal[externalID] = internalID
	return nil
}

func (s *MemoryStore) ResolveExternal(_ context.Context, internalID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byInternal[internalID]
	if !ok || rec.ExternalID == "" {
		return "", fmt.Errorf("%w: no external id for %q", errspkg.ErrNotFound, internalID)
	}
	return rec.ExternalID, nil
}

func (s *MemoryStore) ResolveInternal(_ context.Context, externalID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	internalID, ok := s.byExternal[externalID]
	if !ok {
		return "", fmt.Errorf("%w: no internal id for %q", errspkg.ErrNotFound, externalID)
	}
	return internalID, nil
}

func (s *MemoryStore) Get(_ context.Context, internalID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byInternal[internalID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", errspkg.ErrNotFound, internalID)
	}
	return *rec, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, internalID string, status Status, observedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byInternal[internalID]
	if !ok {
		return false, fmt.Errorf("%w: %q", errspkg.ErrNotFound, internalID)
	}
	if observedAt.Before(rec.LastSyncedAt) {
		s.metrics.RecordStatusUpdate(false)
		return false, nil
	}
	rec.LastKnownStatus = status
	rec.LastSyncedAt = observedAt.UTC()
	s.metrics.RecordStatusUpdate(true)
	return true, nil
}

func (s *MemoryStore) Remove(_ context.Context, internalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byInternal[internalID]
	if !ok {
		return fmt.Errorf("%w: %q", errspkg.ErrNotFound, internalID)
	}
	if rec.ExternalID != "" {
		delete(s.byExternal, rec.ExternalID)
	}
	delete(s.byInternal, internalID)
	s.metrics.SetCorrelationRecords(len(s.byInternal))
	return nil
}

// Len returns the number of records currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byInternal)
}
