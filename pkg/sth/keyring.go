// Package sth implements the STH (Signed Tree Head) service and its
// JWKS-shaped keyring: key rotation through active/next/retired status,
// and signing/publishing the ledger's current tree head.
package sth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"time"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// Status is a keyring entry's rotation state.
type Status string

const (
	StatusActive  Status = "active"
	StatusNext    Status = "next"
	StatusRetired Status = "retired"
)

// KeyEntry is one row of the JWKS-shaped keyring: kid -> {alg, pubkey,
// status, validity window}.
type KeyEntry struct {
	Kid       string
	Alg       string // always "Ed25519" in this implementation
	PubKey    ed25519.PublicKey
	Status    Status
	NotBefore time.Time
	NotAfter  time.Time
}

// covers reports whether at falls within [NotBefore, NotAfter].
func (e KeyEntry) covers(at time.Time) bool {
	if !e.NotBefore.IsZero() && at.Before(e.NotBefore) {
		return false
	}
	if !e.NotAfter.IsZero() && at.After(e.NotAfter) {
		return false
	}
	return true
}

// DeriveKid pins the single kid-derivation rule this deployment uses:
// kid = base64url(sha256(pubkey))[:16]. The spec leaves this an open
// question ("the source uses SHA-256(pubkey) rendered as base64url in
// some paths and hex prefix in others") and asks implementers to pin one
// rule and record it; this is that rule.
func DeriveKid(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return base64.RawURLEncoding.EncodeToString(sum[:])[:16]
}

// Keyring is a copy-on-write map of kid -> KeyEntry, matching the
// "shared resources" rule in spec §5: updates replace the entire map
// atomically so readers never observe a partial rotation.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]KeyEntry
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]KeyEntry)}
}

// Add inserts or replaces entry.
func (k *Keyring) Add(entry KeyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	next := make(map[string]KeyEntry, len(k.keys)+1)
	for kid, e := range k.keys {
		next[kid] = e
	}
	next[entry.Kid] = entry
	k.keys = next
}

// SetStatus transitions kid to newStatus (e.g. next -> active, active ->
// retired), the operator-driven rotation ceremony in spec §4.7.
func (k *Keyring) SetStatus(kid string, newStatus Status) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.keys[kid]
	if !ok {
		return errcodes.New(errcodes.EKeyUnknown, "unknown kid: "+kid)
	}
	e.Status = newStatus
	next := make(map[string]KeyEntry, len(k.keys))
	for id, entry := range k.keys {
		next[id] = entry
	}
	next[kid] = e
	k.keys = next
	return nil
}

// Resolve looks up kid and checks that its validity window covers at,
// per the acceptance rule in spec §3 ("A receipt/STH is accepted if its
// kid resolves to a key whose validity interval covers ts").
func (k *Keyring) Resolve(kid string, at time.Time) (KeyEntry, error) {
	k.mu.RLock()
	e, ok := k.keys[kid]
	k.mu.RUnlock()
	if !ok {
		return KeyEntry{}, errcodes.New(errcodes.EKeyUnknown, "unknown kid: "+kid)
	}
	if !e.covers(at) {
		return KeyEntry{}, errcodes.New(errcodes.EKeyExpired, "kid "+kid+" is outside its validity window")
	}
	return e, nil
}

// Snapshot returns a copy of the current keyring contents.
func (k *Keyring) Snapshot() map[string]KeyEntry {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make(map[string]KeyEntry, len(k.keys))
	for kid, e := range k.keys {
		out[kid] = e
	}
	return out
}
