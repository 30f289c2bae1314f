package merkle

import (
	"crypto/sha256"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func content(i int) []byte {
	h := sha256.Sum256([]byte{byte(i), byte(i >> 8)})
	return h[:]
}

func TestEmptyTree_RootIsEmptyRoot(t *testing.T) {
	tr := New()
	if tr.Root() != EmptyRoot {
		t.Fatal("empty tree root mismatch")
	}
	if tr.Size() != 0 {
		t.Fatal("empty tree size must be 0")
	}
}

func TestSingleLeaf_RootIsLeafHash(t *testing.T) {
	tr := New()
	seq := tr.Append(content(1))
	if seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}
	if tr.Root() != HashLeaf(content(1)) {
		t.Fatal("single-leaf root must equal the leaf hash itself")
	}
	path, err := tr.AuditPath(1)
	if err != nil {
		t.Fatalf("AuditPath: %v", err)
	}
	if len(path) != 0 {
		t.Fatalf("audit path length = %d, want 0", len(path))
	}
}

func TestAppendMonotonicity(t *testing.T) {
	tr := New()
	var lastRoot [32]byte
	for i := 0; i < 8; i++ {
		tr.Append(content(i))
		root := tr.Root()
		if tr.Size() != uint64(i+1) {
			t.Fatalf("size = %d, want %d", tr.Size(), i+1)
		}
		if root == lastRoot && i > 0 {
			t.Fatalf("root did not change after appending leaf %d", i)
		}
		lastRoot = root
	}
}

func TestInclusionProof_AllLeavesVerify(t *testing.T) {
	const n = 13 // deliberately not a power of two
	tr := New()
	leaves := make([][]byte, n)
	for i := 0; i < n; i++ {
		leaves[i] = content(i)
		tr.Append(leaves[i])
	}
	root := tr.Root()

	for seq := uint64(1); seq <= n; seq++ {
		path, err := tr.AuditPath(seq)
		if err != nil {
			t.Fatalf("AuditPath(%d): %v", seq, err)
		}
		if !VerifyAuditPath(leaves[seq-1], seq, uint64(n), path, root) {
			t.Fatalf("inclusion proof failed to verify for seq %d", seq)
		}
	}
}

// TestRoot_MatchesIndependentlyComputedReference cross-checks Root()
// against a root hand-computed from the RFC 6962 MTH definition for a
// tree of 3 leaves (spec §8 scenario 5's odd-sized case), rather than
// only checking the tree against its own output. For n=3, MTH splits at
// k=2 (the largest power of two less than 3): the right-edge leaf
// content(2) must be carried up unchanged and combined only once, as
// H_node(H_node(leaf0, leaf1), leaf2) — never H_node(leaf2, leaf2).
func TestRoot_MatchesIndependentlyComputedReference(t *testing.T) {
	tr := New()
	tr.Append(content(0))
	tr.Append(content(1))
	tr.Append(content(2))

	want := HashNode(HashNode(HashLeaf(content(0)), HashLeaf(content(1))), HashLeaf(content(2)))
	if got := tr.Root(); got != want {
		t.Fatalf("root = %x, want %x (carry-unchanged RFC 6962 reference)", got, want)
	}

	// The buggy duplicate-hash construction this replaces would have
	// produced this value instead; guard against regressing to it.
	duplicated := HashNode(HashNode(HashLeaf(content(0)), HashLeaf(content(1))), HashNode(HashLeaf(content(2)), HashLeaf(content(2))))
	if tr.Root() == duplicated {
		t.Fatal("root matches the self-duplicated lonely-node construction, not the carry-unchanged one")
	}

	path, err := tr.AuditPath(3)
	if err != nil {
		t.Fatalf("AuditPath(3): %v", err)
	}
	if len(path) != 1 {
		t.Fatalf("audit path for the lonely right-edge leaf has length %d, want 1", len(path))
	}
	if path[0] != HashNode(HashLeaf(content(0)), HashLeaf(content(1))) {
		t.Fatal("audit path for seq 3 does not carry the left pair's hash")
	}
	if !VerifyAuditPath(content(2), 3, 3, path, want) {
		t.Fatal("reference-computed root failed to verify via the lonely leaf's audit path")
	}
}

func TestInclusionProof_TamperedPathFails(t *testing.T) {
	tr := New()
	leaves := make([][]byte, 5)
	for i := range leaves {
		leaves[i] = content(i)
		tr.Append(leaves[i])
	}
	root := tr.Root()
	path, err := tr.AuditPath(2)
	if err != nil {
		t.Fatalf("AuditPath: %v", err)
	}
	if len(path) == 0 {
		t.Fatal("expected a non-empty path for a 5-leaf tree")
	}
	path[0][0] ^= 0xFF
	if VerifyAuditPath(leaves[1], 2, 5, path, root) {
		t.Fatal("tampered audit path must not verify")
	}
}

func TestInclusionProof_TamperedRootFails(t *testing.T) {
	tr := New()
	leaves := make([][]byte, 5)
	for i := range leaves {
		leaves[i] = content(i)
		tr.Append(leaves[i])
	}
	root := tr.Root()
	root[0] ^= 0xFF
	path, err := tr.AuditPath(3)
	if err != nil {
		t.Fatalf("AuditPath: %v", err)
	}
	if VerifyAuditPath(leaves[2], 3, 5, path, root) {
		t.Fatal("tampered root must not verify")
	}
}

func TestConsistency_PrefixMatches(t *testing.T) {
	tr := New()
	var stored [][32]byte
	for i := 0; i < 10; i++ {
		tr.Append(content(i))
		stored = append(stored, HashLeaf(content(i)))
	}
	proof, err := tr.Consistency(6)
	if err != nil {
		t.Fatalf("Consistency: %v", err)
	}
	if !VerifyConsistency(proof, stored[:6], tr.Root()) {
		t.Fatal("consistency proof failed to verify against the real prefix")
	}
	if VerifyConsistency(proof, stored[:5], tr.Root()) {
		t.Fatal("consistency proof must not verify against the wrong prefix length")
	}
}

// TestMerkleSoundnessProperty is the property-based counterpart of spec
// §8's Merkle soundness property: every seq in 1..N verifies, and
// flipping any bit of the path or root makes verification fail.
func TestMerkleSoundnessProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every leaf verifies and tampering breaks verification", prop.ForAll(
		func(n int, seedIdx int) bool {
			if n <= 0 {
				n = 1
			}
			tr := New()
			leaves := make([][]byte, n)
			for i := 0; i < n; i++ {
				leaves[i] = content(i)
				tr.Append(leaves[i])
			}
			root := tr.Root()
			seq := uint64((seedIdx%n + n) % n + 1)

			path, err := tr.AuditPath(seq)
			if err != nil {
				return false
			}
			if !VerifyAuditPath(leaves[seq-1], seq, uint64(n), path, root) {
				return false
			}
			if len(path) > 0 {
				tampered := make([][32]byte, len(path))
				copy(tampered, path)
				tampered[0][0] ^= 0xFF
				if VerifyAuditPath(leaves[seq-1], seq, uint64(n), tampered, root) {
					return false
				}
			}
			tamperedRoot := root
			tamperedRoot[0] ^= 0xFF
			if VerifyAuditPath(leaves[seq-1], seq, uint64(n), path, tamperedRoot) {
				return false
			}
			return true
		},
		gen.IntRange(1, 40),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
