package sth

import (
	"testing"
	"time"

	"github.com/tecp-protocol/tecp/pkg/signer"
)

func TestSignAndVerifySTH(t *testing.T) {
	p, err := signer.NewMemoryKeyProvider()
	if err != nil {
		t.Fatalf("NewMemoryKeyProvider: %v", err)
	}
	kid := DeriveKid(p.PublicKey())

	kr := NewKeyring()
	now := time.Now()
	kr.Add(KeyEntry{
		Kid:       kid,
		Alg:       "Ed25519",
		PubKey:    p.PublicKey(),
		Status:    StatusActive,
		NotBefore: now.Add(-time.Hour),
		NotAfter:  now.Add(24 * time.Hour),
	})

	svc := NewService(kr, kid, p)
	root := [32]byte{1, 2, 3}
	s, err := svc.Sign(5, root, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := VerifySTH(kr, s); err != nil {
		t.Fatalf("VerifySTH: %v", err)
	}
}

func TestVerifySTH_RejectsOutsideValidityWindow(t *testing.T) {
	p, _ := signer.NewMemoryKeyProvider()
	kid := DeriveKid(p.PublicKey())

	kr := NewKeyring()
	now := time.Now()
	kr.Add(KeyEntry{
		Kid:       kid,
		PubKey:    p.PublicKey(),
		Status:    StatusActive,
		NotBefore: now.Add(-time.Hour),
		NotAfter:  now.Add(time.Hour),
	})

	svc := NewService(kr, kid, p)
	s, err := svc.Sign(1, [32]byte{9}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Forge a timestamp outside the key's validity window.
	s.TS = now.Add(48 * time.Hour).UnixMilli()
	if err := VerifySTH(kr, s); err == nil {
		t.Fatal("expected validity-window rejection")
	}
}

func TestJWKS_ContainsOnlyPublicMaterial(t *testing.T) {
	p, _ := signer.NewMemoryKeyProvider()
	kid := DeriveKid(p.PublicKey())
	kr := NewKeyring()
	kr.Add(KeyEntry{Kid: kid, PubKey: p.PublicKey(), Status: StatusActive})

	set, err := kr.JWKS()
	if err != nil {
		t.Fatalf("JWKS: %v", err)
	}
	if len(set.Keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(set.Keys))
	}
	if set.Keys[0].KeyID != kid {
		t.Fatalf("kid mismatch: got %s want %s", set.Keys[0].KeyID, kid)
	}
}
