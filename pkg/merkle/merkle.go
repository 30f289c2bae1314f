// Package merkle implements the domain-separated binary Merkle tree used
// by the transparency ledger: leaf and internal-node hashes are prefixed
// with a single domain byte so a node hash can never be confused with a
// leaf hash of the same bytes.
package merkle

import (
	"crypto/sha256"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// HashLeaf computes H_leaf(x) = sha256(0x00 || x).
func HashLeaf(x []byte) [32]byte {
	buf := make([]byte, 0, 1+len(x))
	buf = append(buf, leafPrefix)
	buf = append(buf, x...)
	return sha256.Sum256(buf)
}

// HashNode computes H_node(l, r) = sha256(0x01 || l || r).
func HashNode(l, r [32]byte) [32]byte {
	buf := make([]byte, 0, 1+len(l)+len(r))
	buf = append(buf, nodePrefix)
	buf = append(buf, l[:]...)
	buf = append(buf, r[:]...)
	return sha256.Sum256(buf)
}

// EmptyRoot is the root of a tree with no leaves: the bare SHA-256 of the
// empty string, with no domain separation applied.
var EmptyRoot = sha256.Sum256(nil)

// Tree is an append-only binary Merkle tree over 32-byte leaf contents
// (in TECP, each leaf content is itself a receipt's leaf hash), built the
// standard RFC 6962 way: MTH(D[n]) for n>1 splits at k, the largest power
// of two strictly less than n, and is H_node(MTH(D[0:k]), MTH(D[k:n])).
// A right-edge node with no sibling is never re-hashed with itself — it
// is carried up through the recursion unchanged until it meets its real
// sibling, per spec.md §4.5. The tree recomputes this recursively from
// the ordered leaf slice on every Root/AuditPath call rather than
// maintaining incremental frontier state; this keeps the implementation
// simple and exactly reproducible from persisted entries on restart.
type Tree struct {
	leaves [][32]byte
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// FromLeafHashes reconstructs a tree from already-hashed leaves, as used
// on restart when the ledger store replays entries 1..N.
func FromLeafHashes(leafHashes [][32]byte) *Tree {
	cp := make([][32]byte, len(leafHashes))
	copy(cp, leafHashes)
	return &Tree{leaves: cp}
}

// Append adds a new leaf (by its raw content, not yet domain-hashed) and
// returns its 1-based sequence number.
func (t *Tree) Append(content []byte) uint64 {
	t.leaves = append(t.leaves, HashLeaf(content))
	return uint64(len(t.leaves))
}

// Size returns the current number of leaves.
func (t *Tree) Size() uint64 { return uint64(len(t.leaves)) }

// Root returns the current tree root.
func (t *Tree) Root() [32]byte {
	if len(t.leaves) == 0 {
		return EmptyRoot
	}
	return mth(t.leaves)
}

// largestPowerOfTwoLessThan returns the largest power of two strictly
// less than n. n must be >= 2.
func largestPowerOfTwoLessThan(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

// mth is the RFC 6962 Merkle Tree Hash of a non-empty, already
// leaf-hashed slice: MTH of a single node is the node itself; otherwise
// the slice splits at k, the largest power of two strictly less than its
// length, and the two halves' hashes combine as H_node(left, right).
// This is what gives a right-edge node with no pair its "carried up
// unchanged" treatment: it never gets re-hashed with itself, it simply
// becomes an operand the first time a real sibling is available.
func mth(nodes [][32]byte) [32]byte {
	n := len(nodes)
	if n == 1 {
		return nodes[0]
	}
	k := largestPowerOfTwoLessThan(n)
	return HashNode(mth(nodes[:k]), mth(nodes[k:]))
}

// AuditPath returns the ordered sibling hashes, leaf to root, for the
// entry at 1-based sequence seq in the tree's current state. Path length
// depends on seq's position as well as tree size: it is exactly
// ceil(log2(N)) for a leaf in the deepest, complete left subtree, and
// shorter for a right-edge leaf that is still carrying up unpaired.
func (t *Tree) AuditPath(seq uint64) ([][32]byte, error) {
	n := uint64(len(t.leaves))
	if seq < 1 || seq > n {
		return nil, errcodes.New(errcodes.EProofMalformed, "sequence out of range for current tree size")
	}
	return auditPath(t.leaves, int(seq-1)), nil
}

// auditPath mirrors mth's recursive split, collecting the hash of
// whichever half does not contain leaf index m. Entries are appended
// deepest-first, so the returned slice is ordered leaf to root.
func auditPath(nodes [][32]byte, m int) [][32]byte {
	n := len(nodes)
	if n == 1 {
		return nil
	}
	k := largestPowerOfTwoLessThan(n)
	if m < k {
		path := auditPath(nodes[:k], m)
		return append(path, mth(nodes[k:]))
	}
	path := auditPath(nodes[k:], m-k)
	return append(path, mth(nodes[:k]))
}

// VerifyAuditPath recomputes the root from leafContent, seq, treeSize,
// and path, and compares it against expectedRoot. It replays the same
// largest-power-of-two split used to build the tree, consuming path
// entries from the root end inward to match the order auditPath
// produced them in.
func VerifyAuditPath(leafContent []byte, seq uint64, treeSize uint64, path [][32]byte, expectedRoot [32]byte) bool {
	if seq < 1 || seq > treeSize {
		return false
	}
	h, ok := verifyPath(HashLeaf(leafContent), int(seq-1), int(treeSize), path)
	return ok && h == expectedRoot
}

// verifyPath is the inverse of auditPath: it recombines h with path's
// entries in the same split order auditPath walked, returning the
// recomputed root (or ok=false if path's shape doesn't match n).
func verifyPath(h [32]byte, m, n int, path [][32]byte) ([32]byte, bool) {
	if n == 1 {
		if len(path) != 0 {
			return h, false
		}
		return h, true
	}
	if len(path) == 0 {
		return h, false
	}
	sib := path[len(path)-1]
	rest := path[:len(path)-1]
	k := largestPowerOfTwoLessThan(n)
	if m < k {
		hh, ok := verifyPath(h, m, k, rest)
		if !ok {
			return h, false
		}
		return HashNode(hh, sib), true
	}
	hh, ok := verifyPath(h, m-k, n-k, rest)
	if !ok {
		return h, false
	}
	return HashNode(sib, hh), true
}

// ConsistencyProof records the sizes and roots of an older and a newer
// tree state, so a verifier can check that the tree of size OldSize is a
// prefix of the tree of size NewSize. It carries no leaf hashes or audit
// path: unlike the inclusion audit path, consistency is checked by the
// verifier replaying the first OldSize leaf hashes it holds itself (as,
// like the STH service, any holder of the ledger's leaf sequence can) —
// the spec leaves this component's format unconstrained ("an implementer
// may include it without format changes").
type ConsistencyProof struct {
	OldSize uint64
	NewSize uint64
	OldRoot [32]byte
	NewRoot [32]byte
}

// Consistency builds a ConsistencyProof for the tree's current state
// against an earlier size oldSize.
func (t *Tree) Consistency(oldSize uint64) (ConsistencyProof, error) {
	n := uint64(len(t.leaves))
	if oldSize > n {
		return ConsistencyProof{}, errcodes.New(errcodes.EProofMalformed, "oldSize exceeds current tree size")
	}
	oldTree := FromLeafHashes(t.leaves[:oldSize])
	return ConsistencyProof{
		OldSize: oldSize,
		NewSize: n,
		OldRoot: oldTree.Root(),
		NewRoot: t.Root(),
	}, nil
}

// VerifyConsistency checks that proof's old root matches the root
// recomputed by the verifier from its own record of the first OldSize
// leaves, and that NewRoot matches the log's currently published root.
func VerifyConsistency(proof ConsistencyProof, leafHashesUpToOldSize [][32]byte, publishedNewRoot [32]byte) bool {
	if uint64(len(leafHashesUpToOldSize)) != proof.OldSize {
		return false
	}
	recomputed := FromLeafHashes(leafHashesUpToOldSize).Root()
	return recomputed == proof.OldRoot && proof.NewRoot == publishedNewRoot
}
