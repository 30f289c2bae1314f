package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/tecp-protocol/tecp/pkg/canon"
)

func validReceipt(t *testing.T) Receipt {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	nonce := make([]byte, NonceLen)
	hash := make([]byte, HashLen)

	r := Receipt{
		Version:    CurrentVersion,
		CodeRef:    "git:abc123",
		TS:         1700000000000,
		Nonce:      canon.EncodeUnpadded(nonce),
		InputHash:  canon.EncodeUnpadded(hash),
		OutputHash: canon.EncodeUnpadded(hash),
		PolicyIDs:  []string{"eu_region", "no_retention"},
		PubKey:     canon.EncodeUnpadded(pub),
	}
	sb, err := r.SigningBytes()
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	r.Sig = canon.EncodeUnpadded(ed25519.Sign(priv, sb))
	return r
}

func TestValidateStructure_Valid(t *testing.T) {
	r := validReceipt(t)
	if err := r.ValidateStructure(); err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
}

func TestValidateStructure_RejectsShortNonce(t *testing.T) {
	r := validReceipt(t)
	r.Nonce = canon.EncodeUnpadded([]byte{1, 2, 3})
	if err := r.ValidateStructure(); err == nil {
		t.Fatal("expected error for short nonce")
	}
}

func TestValidateStructure_RejectsUnsortedPolicyIDs(t *testing.T) {
	r := validReceipt(t)
	r.PolicyIDs = []string{"no_retention", "eu_region"}
	if err := r.ValidateStructure(); err == nil {
		t.Fatal("expected error for unsorted policy_ids")
	}
}

func TestSortPolicyIDs(t *testing.T) {
	got := SortPolicyIDs([]string{"hipaa_safe", "eu_region", "no_retention", "eu_region"})
	want := []string{"eu_region", "hipaa_safe", "no_retention"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestLeafBytes_Deterministic(t *testing.T) {
	r := validReceipt(t)
	l1, err := r.LeafBytes()
	if err != nil {
		t.Fatalf("LeafBytes: %v", err)
	}
	l2, err := r.LeafBytes()
	if err != nil {
		t.Fatalf("LeafBytes: %v", err)
	}
	if l1 != l2 {
		t.Fatal("leaf bytes not deterministic")
	}
}

func TestVersionAtMost(t *testing.T) {
	ok, err := VersionAtMost("TECP-0.1", "TECP-0.2")
	if err != nil {
		t.Fatalf("VersionAtMost: %v", err)
	}
	if !ok {
		t.Fatal("expected 0.1 <= 0.2")
	}

	ok, err = VersionAtMost("TECP-0.3", "TECP-0.2")
	if err != nil {
		t.Fatalf("VersionAtMost: %v", err)
	}
	if ok {
		t.Fatal("expected 0.3 > 0.2")
	}
}
