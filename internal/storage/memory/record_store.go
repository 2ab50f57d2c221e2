package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/docresolver/internal/document"
)

// RecordStore keeps resolution records in insertion order.
type RecordStore struct {
	mu      sync.RWMutex
	records []document.ResolutionRecord
	byID    map[string]int
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{byID: make(map[string]int)}
}

// StoreResolution appends record. IDs must be unique.
func (s *RecordStore) StoreResolution(_ context.Context, record document.ResolutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[record.ID]; exists {
		return errors.New("resolution already recorded")
	}
	s.byID[record.ID] = len(s.records)
	s.records = append(s.records, record)
	return nil
}

// Records returns a snapshot of all stored records.
func (s *RecordStore) Records() []document.ResolutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]document.ResolutionRecord(nil), s.records...)
}

// ByIdentifier returns records for identifier, oldest first.
func (s *RecordStore) ByIdentifier(identifier string) []document.ResolutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []document.ResolutionRecord
	for _, r := range s.records {
		if r.Identifier == identifier {
			out = append(out, r)
		}
	}
	return out
}
