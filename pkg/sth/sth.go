package sth

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/tecp-protocol/tecp/pkg/canon"
	"github.com/tecp-protocol/tecp/pkg/errcodes"
	"github.com/tecp-protocol/tecp/pkg/signer"
)

// STH is the wire shape of a Signed Tree Head: {size, root, ts, kid,
// sig}. Root is rendered as lowercase hex, matching the leaf-derivation
// encoding pinned in spec §6 so the ledger's external surface uses one
// binary-field convention consistently.
type STH struct {
	Size uint64 `json:"size"`
	Root string `json:"root"`
	TS   int64  `json:"ts"`
	Kid  string `json:"kid"`
	Sig  string `json:"sig"`
}

type unsignedSTH struct {
	Size uint64 `json:"size"`
	Root string `json:"root"`
	TS   int64  `json:"ts"`
	Kid  string `json:"kid"`
}

// SigningBytes returns the canonical bytes the STH signature is computed
// over: size, root, ts, kid, excluding sig.
func (s STH) SigningBytes() ([]byte, error) {
	return canon.Bytes(unsignedSTH{Size: s.Size, Root: s.Root, TS: s.TS, Kid: s.Kid})
}

// Service maintains the ledger's current STH, signing with whichever key
// is presently active in the keyring.
type Service struct {
	mu           sync.Mutex
	keyring      *Keyring
	activeKid    string
	activeSigner *signer.Signer
	current      STH
}

// NewService constructs an STH service backed by keyring, signing new
// STHs with activeProvider under kid activeKid. activeKid must already
// be present in keyring with status active.
func NewService(keyring *Keyring, activeKid string, activeProvider signer.KeyProvider) *Service {
	return &Service{
		keyring:      keyring,
		activeKid:    activeKid,
		activeSigner: signer.New(activeProvider),
	}
}

// Sign produces and caches a new STH for the given tree size/root at the
// given timestamp. Called on every successful ledger append (spec §4.7:
// "refreshed on every successful append and on demand").
func (svc *Service) Sign(size uint64, root [32]byte, now time.Time) (STH, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, err := svc.keyring.Resolve(svc.activeKid, now); err != nil {
		return STH{}, err
	}

	candidate := STH{
		Size: size,
		Root: hex.EncodeToString(root[:]),
		TS:   now.UnixMilli(),
		Kid:  svc.activeKid,
	}
	sb, err := candidate.SigningBytes()
	if err != nil {
		return STH{}, err
	}
	sig, err := svc.activeSigner.Sign(sb)
	if err != nil {
		return STH{}, err
	}
	candidate.Sig = canon.EncodeUnpadded(sig)
	svc.current = candidate
	return candidate, nil
}

// Current returns the most recently signed STH.
func (svc *Service) Current() STH {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.current
}

// RotateActive switches the signing key to newKid/newProvider. The
// caller is responsible for having already transitioned newKid to
// StatusActive (and the old key to StatusRetired) in the keyring;
// RotateActive only changes which key future Sign calls use.
func (svc *Service) RotateActive(newKid string, newProvider signer.KeyProvider) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.activeKid = newKid
	svc.activeSigner = signer.New(newProvider)
}

// VerifySTH checks sig over {size, root, ts, kid} under the key that kid
// resolves to in keyring at the STH's own ts, per spec §4.7/§4.9.
func VerifySTH(keyring *Keyring, s STH) error {
	entry, err := keyring.Resolve(s.Kid, time.UnixMilli(s.TS))
	if err != nil {
		return err
	}
	if s.Sig == "" {
		return errcodes.New(errcodes.ESTHUnsigned, "STH has no signature")
	}
	sb, err := s.SigningBytes()
	if err != nil {
		return err
	}
	sigBytes, err := canon.DecodeNormalized(s.Sig)
	if err != nil {
		return errcodes.Wrap(errcodes.ESigInvalid, "STH sig is not valid base64url", err)
	}
	return signer.Verify(entry.PubKey, sb, sigBytes)
}
