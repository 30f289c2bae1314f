package ledgerstore

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecp-protocol/tecp/pkg/merkle"
	"github.com/tecp-protocol/tecp/pkg/signer"
	"github.com/tecp-protocol/tecp/pkg/sth"
)

func newTestLedger(t *testing.T) (*Ledger, Store) {
	t.Helper()
	store := NewMemoryStore(nil)

	p, err := signer.NewMemoryKeyProvider()
	require.NoError(t, err)
	kid := sth.DeriveKid(p.PublicKey())

	kr := sth.NewKeyring()
	kr.Add(sth.KeyEntry{
		Kid:    kid,
		Alg:    "Ed25519",
		PubKey: p.PublicKey(),
		Status: sth.StatusActive,
	})
	svc := sth.NewService(kr, kid, p)

	l, err := New(context.Background(), store, svc, nil)
	require.NoError(t, err)
	return l, store
}

func TestLedger_AppendSignsNewSTHPerEntry(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	r1, err := l.Append(ctx, leafFor("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r1.Seq)
	assert.False(t, r1.Replayed)
	assert.Equal(t, uint64(1), r1.STH.Size)

	r2, err := l.Append(ctx, leafFor("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.Seq)
	assert.Equal(t, uint64(2), r2.STH.Size)
	assert.NotEqual(t, r1.STH.Root, r2.STH.Root)
}

func TestLedger_AppendIsIdempotentAndSkipsSTHResign(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	leaf := leafFor("dup")

	first, err := l.Append(ctx, leaf, nil)
	require.NoError(t, err)

	second, err := l.Append(ctx, leaf, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Seq, second.Seq)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.STH, second.STH, "a replayed append must return the existing STH, not a re-signed one")
	assert.Equal(t, uint64(1), l.Size())
}

func TestLedger_InclusionProofVerifiesAgainstCurrentSTH(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var last AppendResult
	leaves := make([][32]byte, 0, 5)
	for i := 0; i < 5; i++ {
		leaf := leafFor(string(rune('a' + i)))
		leaves = append(leaves, leaf)
		r, err := l.Append(ctx, leaf, nil)
		require.NoError(t, err)
		last = r
	}

	for i, leaf := range leaves {
		seq := uint64(i + 1)
		path, err := l.InclusionProof(seq)
		require.NoError(t, err)

		var root [32]byte
		rootBytes, err := hex.DecodeString(last.STH.Root)
		require.NoError(t, err)
		copy(root[:], rootBytes)

		ok := merkle.VerifyAuditPath(leaf[:], seq, last.STH.Size, path, root)
		assert.True(t, ok, "leaf %d should verify against current STH", seq)
	}
}

func TestLedger_StartupRecoversTreeFromStore(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := store.Append(ctx, leafFor(string(rune('a'+i))), nil)
		require.NoError(t, err)
	}

	p, err := signer.NewMemoryKeyProvider()
	require.NoError(t, err)
	kid := sth.DeriveKid(p.PublicKey())
	kr := sth.NewKeyring()
	kr.Add(sth.KeyEntry{Kid: kid, PubKey: p.PublicKey(), Status: sth.StatusActive})
	svc := sth.NewService(kr, kid, p)

	l, err := New(ctx, store, svc, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), l.Size())

	recovered := l.CurrentSTH()
	assert.Equal(t, uint64(4), recovered.Size, "CurrentSTH must reflect the recovered tree before any new append")
	assert.NotEmpty(t, recovered.Sig)

	r, err := l.Append(ctx, leafFor("e"), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), r.Seq)
}

func TestLedger_AppendUsesInjectedClock(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	p, err := signer.NewMemoryKeyProvider()
	require.NoError(t, err)
	kid := sth.DeriveKid(p.PublicKey())
	kr := sth.NewKeyring()
	kr.Add(sth.KeyEntry{Kid: kid, PubKey: p.PublicKey(), Status: sth.StatusActive})
	svc := sth.NewService(kr, kid, p)

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l, err := New(ctx, store, svc, func() time.Time { return fixed })
	require.NoError(t, err)

	r, err := l.Append(ctx, leafFor("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), r.STH.TS)
}
