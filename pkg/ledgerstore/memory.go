package ledgerstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and the single-node dev
// profile, grounded on core/pkg/ledger/ledger.go's mutex+slice pattern:
// one RWMutex, a growable slice, and a secondary index for leaf lookup.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byLeaf  map[[32]byte]uint64
	clock   func() time.Time
}

// NewMemoryStore returns an empty store. clock defaults to time.Now if
// nil, matching the teacher's WithClock injection pattern.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		byLeaf: make(map[[32]byte]uint64),
		clock:  clock,
	}
}

func (m *MemoryStore) Append(_ context.Context, leaf [32]byte, metadata map[string]interface{}) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq, ok := m.byLeaf[leaf]; ok {
		return seq, nil
	}

	seq := uint64(len(m.entries)) + 1
	e := Entry{
		Seq:       seq,
		Leaf:      leaf,
		CreatedAt: m.clock(),
		Metadata:  metadata,
	}
	m.entries = append(m.entries, e)
	m.byLeaf[leaf] = seq
	return seq, nil
}

func (m *MemoryStore) Entry(_ context.Context, seq uint64) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if seq == 0 || seq > uint64(len(m.entries)) {
		return Entry{}, ErrNotFound
	}
	return m.entries[seq-1], nil
}

func (m *MemoryStore) FindByLeaf(_ context.Context, leaf [32]byte) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seq, ok := m.byLeaf[leaf]
	if !ok {
		return 0, ErrNotFound
	}
	return seq, nil
}

func (m *MemoryStore) Range(_ context.Context, offset, limit uint64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= uint64(len(m.entries)) {
		return nil, nil
	}
	end := offset + limit
	if limit == 0 || end > uint64(len(m.entries)) {
		end = uint64(len(m.entries))
	}
	out := make([]Entry, end-offset)
	copy(out, m.entries[offset:end])
	return out, nil
}

func (m *MemoryStore) Size(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.entries)), nil
}
