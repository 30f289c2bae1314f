package ledgerstore

import (
	"context"
	"sync"
	"time"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
	"github.com/tecp-protocol/tecp/pkg/merkle"
	"github.com/tecp-protocol/tecp/pkg/sth"
)

// AppendResult is what Ledger.Append hands back: the assigned sequence,
// the freshly-signed tree head, and whether this append was a no-op
// replay of an already-known leaf (spec §9's idempotent-append policy).
type AppendResult struct {
	Seq      uint64
	STH      sth.STH
	Replayed bool
}

// Ledger combines a durable Store with the in-memory Merkle tree and STH
// service, serializing every append behind a single mutex so the three
// stay in lockstep (spec §5: "the tree and the durable store are
// updated under one lock; a crash between them is recovered by
// rebuilding the tree from the store on startup").
type Ledger struct {
	mu    sync.Mutex
	store Store
	tree  *merkle.Tree
	sths  *sth.Service
	clock func() time.Time
	cache *IdempotencyCache
}

// WithIdempotencyCache attaches an optional Redis fast-path for the
// duplicate-leaf check on Append. Advisory only: a cache miss or error
// always falls through to the Store.
func (l *Ledger) WithIdempotencyCache(cache *IdempotencyCache) *Ledger {
	l.cache = cache
	return l
}

// New constructs a Ledger over store, rebuilding its in-memory Merkle
// tree from every already-persisted entry. Call this once at startup;
// it is the crash-recovery path required by spec §4.6.
func New(ctx context.Context, store Store, sths *sth.Service, clock func() time.Time) (*Ledger, error) {
	if clock == nil {
		clock = time.Now
	}
	size, err := store.Size(ctx)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.EStoreIO, "read ledger size during startup", err)
	}

	leafHashes := make([][32]byte, 0, size)
	const batch = 1024
	for offset := uint64(0); offset < size; offset += batch {
		entries, err := store.Range(ctx, offset, batch)
		if err != nil {
			return nil, errcodes.Wrap(errcodes.EStoreIO, "replay ledger entries during startup", err)
		}
		for _, e := range entries {
			leafHashes = append(leafHashes, merkle.HashLeaf(e.Leaf[:]))
		}
	}

	tree := merkle.FromLeafHashes(leafHashes)
	if tree.Size() > 0 {
		// Recover the STH for the rebuilt tree now, before any caller can
		// observe CurrentSTH(): spec §4.6 requires the Merkle engine to
		// "reconstruct from entries 1..N and recompute the last STH before
		// accepting new appends."
		if _, err := sths.Sign(tree.Size(), tree.Root(), clock()); err != nil {
			return nil, errcodes.Wrap(errcodes.EStoreIO, "sign recovered STH during startup", err)
		}
	}

	return &Ledger{
		store: store,
		tree:  tree,
		sths:  sths,
		clock: clock,
	}, nil
}

// Append idempotently appends content's leaf hash to the ledger: if the
// leaf already exists (same input bytes produce the same leaf hash), the
// existing sequence is returned and no new STH is signed. Otherwise the
// entry is persisted, the in-memory tree extended, and a new STH signed
// — all under a single lock, per spec §5/§9.
func (l *Ledger) Append(ctx context.Context, leafHash [32]byte, metadata map[string]interface{}) (AppendResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache != nil {
		if cachedSeq, hit, err := l.cache.Lookup(ctx, leafHash); err == nil && hit {
			return AppendResult{Seq: cachedSeq, STH: l.sths.Current(), Replayed: true}, nil
		}
		// Cache miss or cache error: fall through to the Store, which is
		// always authoritative.
	}

	if existingSeq, err := l.store.FindByLeaf(ctx, leafHash); err == nil {
		if l.cache != nil {
			_ = l.cache.Remember(ctx, leafHash, existingSeq)
		}
		return AppendResult{Seq: existingSeq, STH: l.sths.Current(), Replayed: true}, nil
	} else if err != ErrNotFound {
		return AppendResult{}, err
	}

	seq, err := l.store.Append(ctx, leafHash, metadata)
	if err != nil {
		return AppendResult{}, err
	}
	if l.cache != nil {
		_ = l.cache.Remember(ctx, leafHash, seq)
	}

	treeSeq := l.tree.Append(leafHash[:])
	if treeSeq != seq {
		// The store and the in-memory tree have diverged; this can only
		// happen if something appended to the store without going
		// through this Ledger. Surface it as corruption rather than
		// silently signing an STH over the wrong tree.
		return AppendResult{}, errcodes.New(errcodes.EStoreCorrupt,
			"ledger store and merkle tree sequence mismatch")
	}

	head, err := l.sths.Sign(l.tree.Size(), l.tree.Root(), l.clock())
	if err != nil {
		return AppendResult{}, err
	}

	return AppendResult{Seq: seq, STH: head}, nil
}

// InclusionProof returns the audit path proving seq's membership under
// the ledger's current tree head.
func (l *Ledger) InclusionProof(seq uint64) ([][32]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree.AuditPath(seq)
}

// CurrentSTH returns the most recently signed tree head.
func (l *Ledger) CurrentSTH() sth.STH {
	return l.sths.Current()
}

// Entry fetches a persisted entry by sequence.
func (l *Ledger) Entry(ctx context.Context, seq uint64) (Entry, error) {
	return l.store.Entry(ctx, seq)
}

// Range fetches a page of persisted entries.
func (l *Ledger) Range(ctx context.Context, offset, limit uint64) ([]Entry, error) {
	return l.store.Range(ctx, offset, limit)
}

// Size returns the ledger's current entry count.
func (l *Ledger) Size() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree.Size()
}
