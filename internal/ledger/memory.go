// Package ledger records which files have been ingested, keyed by content
// checksum within a store scope, so unchanged files are not written to the
// same vector store twice.
package ledger

import (
	"context"
	"sort"
	"sync"

	"policyrag/internal/domain"
)

// Memory is an in-process ledger. It forgets everything on exit, which
// matches the in-memory vector store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]domain.IngestionRecord
}

var _ domain.Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]domain.IngestionRecord)}
}

func (m *Memory) Lookup(_ context.Context, checksum string) (domain.IngestionRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[checksum]
	return rec, ok, nil
}

func (m *Memory) Record(_ context.Context, rec domain.IngestionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Checksum] = rec
	return nil
}

func (m *Memory) List(context.Context) ([]domain.IngestionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.IngestionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.records)
	return nil
}

func (m *Memory) Close() error { return nil }

// newest first, then by source for a stable listing
func sortRecords(recs []domain.IngestionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].IngestedAt.Equal(recs[j].IngestedAt) {
			return recs[i].IngestedAt.After(recs[j].IngestedAt)
		}
		return recs[i].Source < recs[j].Source
	})
}
