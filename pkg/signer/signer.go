// Package signer wraps Ed25519 signing/verification behind a small
// KeyProvider interface so the in-memory development key can later be
// swapped for an HSM- or KMS-backed implementation without touching any
// caller.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// KeyProvider is the capability a Signer needs: produce a signature over
// an already-canonicalized message, and expose the corresponding public
// key. Key material never crosses this boundary in the other direction.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// MemoryKeyProvider holds an Ed25519 keypair in process memory. It is the
// reference provider for development, tests, and single-box deployments.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh random Ed25519 keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.EKeyUnknown, "key generation failed", err)
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

// FromSeed reconstructs a keypair from a 32-byte Ed25519 seed, used to
// load a persisted or HKDF-derived key.
func FromSeed(seed []byte) (*MemoryKeyProvider, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errcodes.New(errcodes.EKeyUnknown, "seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey { return m.pub }

// Seed exposes the private key's 32-byte seed, used by HKDF-based key
// derivation during rotation ceremonies and by `tecp keygen` output.
func (m *MemoryKeyProvider) Seed() []byte { return m.priv.Seed() }

// Signer signs canonical byte payloads with a backing KeyProvider.
type Signer struct {
	provider KeyProvider
}

// New wraps p. If p is nil, a fresh MemoryKeyProvider is generated so
// callers always get a usable signer; this matches development ergonomics
// but production issuers must supply an explicit provider.
func New(p KeyProvider) *Signer {
	if p == nil {
		p, _ = NewMemoryKeyProvider()
	}
	return &Signer{provider: p}
}

// Sign signs canonicalBytes and returns the 64-byte Ed25519 signature.
func (s *Signer) Sign(canonicalBytes []byte) ([]byte, error) {
	sig, err := s.provider.Sign(canonicalBytes)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.ESigInvalid, "signing failed", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, errcodes.New(errcodes.ESigInvalid, "signature has unexpected length")
	}
	return sig, nil
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.provider.PublicKey() }

// PublicKeyBytes returns the signer's public key as a plain byte slice,
// satisfying callers (such as pkg/receipt.Signer) that avoid importing
// crypto/ed25519 directly.
func (s *Signer) PublicKeyBytes() []byte { return []byte(s.provider.PublicKey()) }

// Verify checks sig over canonicalBytes under pubkey, returning a stable
// E_SIG_INVALID error on any mismatch (wrong length, wrong key, or a
// genuinely invalid signature all collapse to the same code per spec §7).
func Verify(pubkey ed25519.PublicKey, canonicalBytes, sig []byte) error {
	if len(pubkey) != ed25519.PublicKeySize {
		return errcodes.New(errcodes.ESigInvalid, "public key has unexpected length")
	}
	if len(sig) != ed25519.SignatureSize {
		return errcodes.New(errcodes.ESigInvalid, "signature has unexpected length")
	}
	if !ed25519.Verify(pubkey, canonicalBytes, sig) {
		return errcodes.New(errcodes.ESigInvalid, "signature does not verify")
	}
	return nil
}

// DeriveNextKey deterministically derives a successor Ed25519 keypair
// from master's seed using HKDF-SHA256, keyed by label (typically the kid
// or purpose of the new key). This lets an operator pre-compute a "next"
// key for a rotation ceremony without generating and separately escrowing
// fresh random material.
func DeriveNextKey(master *MemoryKeyProvider, label string) (*MemoryKeyProvider, error) {
	if label == "" {
		return nil, errcodes.New(errcodes.EKeyUnknown, "label must not be empty")
	}
	reader := hkdf.New(sha256.New, master.Seed(), []byte("tecp-key-rotation-v1"), []byte(label))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, errcodes.Wrap(errcodes.EKeyUnknown, "HKDF derivation failed", err)
	}
	return FromSeed(seed)
}
