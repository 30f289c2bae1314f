package ledgerstore

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafFor(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}

func TestMemoryStore_AppendAssignsDenseSequences(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	seq1, err := s.Append(ctx, leafFor("a"), nil)
	require.NoError(t, err)
	seq2, err := s.Append(ctx, leafFor("b"), nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), size)
}

func TestMemoryStore_AppendIsIdempotent(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	leaf := leafFor("dup")

	seq1, err := s.Append(ctx, leaf, map[string]interface{}{"k": "v1"})
	require.NoError(t, err)

	seq2, err := s.Append(ctx, leaf, map[string]interface{}{"k": "v2"})
	require.NoError(t, err)

	assert.Equal(t, seq1, seq2, "re-appending an existing leaf must return the original seq")

	size, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size, "no duplicate row should be created")
}

func TestMemoryStore_EntryAndFindByLeaf(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	leaf := leafFor("x")

	seq, err := s.Append(ctx, leaf, map[string]interface{}{"foo": "bar"})
	require.NoError(t, err)

	e, err := s.Entry(ctx, seq)
	require.NoError(t, err)
	assert.Equal(t, leaf, e.Leaf)
	assert.Equal(t, "bar", e.Metadata["foo"])

	found, err := s.FindByLeaf(ctx, leaf)
	require.NoError(t, err)
	assert.Equal(t, seq, found)

	_, err = s.FindByLeaf(ctx, leafFor("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Entry(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Range(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, leafFor(string(rune('a'+i))), nil)
		require.NoError(t, err)
	}

	page, err := s.Range(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].Seq)
	assert.Equal(t, uint64(3), page[1].Seq)

	all, err := s.Range(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	empty, err := s.Range(ctx, 10, 5)
	require.NoError(t, err)
	assert.Len(t, empty, 0)
}
