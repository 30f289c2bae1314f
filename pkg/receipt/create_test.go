package receipt

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/tecp-protocol/tecp/pkg/canon"
	"github.com/tecp-protocol/tecp/pkg/policy"
	"github.com/tecp-protocol/tecp/pkg/signer"
)

func TestCreate_BasicRoundTrip(t *testing.T) {
	p, err := signer.NewMemoryKeyProvider()
	if err != nil {
		t.Fatalf("NewMemoryKeyProvider: %v", err)
	}
	s := signer.New(p)

	fixedNow := time.UnixMilli(1700000000000)
	r, ext, err := Create(context.Background(), s, CreateParams{
		CodeRef:   "git:abc",
		Input:     []byte("hello"),
		Output:    []byte("world"),
		PolicyIDs: []string{"no_retention"},
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ext != nil {
		t.Fatalf("expected no extensions without a policy registry, got %+v", ext)
	}
	if err := r.ValidateStructure(); err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}

	sb, err := r.SigningBytes()
	if err != nil {
		t.Fatalf("SigningBytes: %v", err)
	}
	if err := signer.Verify(p.PublicKey(), sb, mustDecode(t, r.Sig)); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	leaf, err := r.LeafBytes()
	if err != nil {
		t.Fatalf("LeafBytes: %v", err)
	}
	cb, err := canon.Bytes(r)
	if err != nil {
		t.Fatalf("canon.Bytes: %v", err)
	}
	if leaf != sha256.Sum256(cb) {
		t.Fatal("leaf must equal sha256 of the canonical full receipt")
	}
}

func TestCreate_PolicySortIsOrderIndependent(t *testing.T) {
	p, _ := signer.NewMemoryKeyProvider()
	s := signer.New(p)
	fixedNow := time.UnixMilli(1700000000000)

	r1, _, err := Create(context.Background(), s, CreateParams{
		CodeRef:   "git:abc",
		Input:     []byte("hello"),
		Output:    []byte("world"),
		PolicyIDs: []string{"hipaa_safe", "eu_region", "no_retention"},
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := []string{"eu_region", "hipaa_safe", "no_retention"}
	if len(r1.PolicyIDs) != len(want) {
		t.Fatalf("got %v, want %v", r1.PolicyIDs, want)
	}
	for i := range want {
		if r1.PolicyIDs[i] != want[i] {
			t.Fatalf("got %v, want %v", r1.PolicyIDs, want)
		}
	}

	r2, _, err := Create(context.Background(), s, CreateParams{
		CodeRef:   "git:abc",
		Input:     []byte("hello"),
		Output:    []byte("world"),
		PolicyIDs: []string{"no_retention", "eu_region", "hipaa_safe"},
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(r2.PolicyIDs) != len(want) {
		t.Fatalf("second ordering: got %v, want %v", r2.PolicyIDs, want)
	}
	for i := range want {
		if r2.PolicyIDs[i] != want[i] {
			t.Fatalf("second ordering: got %v, want %v", r2.PolicyIDs, want)
		}
	}
}

func TestCreate_PolicyDenialPropagates(t *testing.T) {
	p, _ := signer.NewMemoryKeyProvider()
	s := signer.New(p)
	reg := policy.NewRegistry(policy.TTL{})

	_, _, err := Create(context.Background(), s, CreateParams{
		CodeRef:   "git:abc",
		Input:     []byte("hello"),
		Output:    []byte("world"),
		PolicyIDs: []string{"ttl_60"},
		Registry:  reg,
		PolicyCtx: policy.Context{
			StartTime: time.Now().Add(-2 * time.Hour),
			Now:       time.Now(),
			Attrs:     map[string]interface{}{"ttl_max_seconds": 60},
		},
	})
	if err == nil {
		t.Fatal("expected policy denial error")
	}
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := canon.DecodeNormalized(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return b
}

