// Package ledgerstore implements the C6 ledger store: a durable,
// append-only record of (seq, leaf, metadata) with idempotent append
// semantics, plus the in-memory Merkle/STH bookkeeping that makes
// append() a single atomic operation per spec §5.
package ledgerstore

import (
	"context"
	"time"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// Entry is one immutable ledger row.
type Entry struct {
	Seq       uint64
	Leaf      [32]byte
	CreatedAt time.Time
	Metadata  map[string]interface{}
}

// Store is the persistence contract C6 requires. Implementations must
// guarantee: seq values are dense and start at 1, entries are never
// mutated once appended, and Append is safe to call concurrently (the
// Store itself serializes writes; Ledger additionally holds its own
// append lock to keep the Merkle tree and STH in lockstep with the
// store).
type Store interface {
	// Append persists a new entry for leaf and returns its assigned
	// sequence number. Implementations MUST NOT assign a second sequence
	// to an already-persisted leaf; callers check FindByLeaf themselves
	// for the idempotent-append policy, but a unique constraint here is
	// the backstop against races.
	Append(ctx context.Context, leaf [32]byte, metadata map[string]interface{}) (uint64, error)
	Entry(ctx context.Context, seq uint64) (Entry, error)
	FindByLeaf(ctx context.Context, leaf [32]byte) (uint64, error)
	Range(ctx context.Context, offset, limit uint64) ([]Entry, error)
	Size(ctx context.Context) (uint64, error)
}

// ErrNotFound is returned by Entry/FindByLeaf when no matching row
// exists; callers translate it to errcodes.ENotFound at the API layer.
var ErrNotFound = errcodes.New(errcodes.ENotFound, "ledger entry not found")
