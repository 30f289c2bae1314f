// Package receipt defines the TECP receipt wire type: the nine signed
// core fields plus the unsigned extension envelope, and the structural
// invariants every receipt must satisfy regardless of profile.
package receipt

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/tecp-protocol/tecp/pkg/canon"
	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// CurrentVersion is the only version this implementation issues.
const CurrentVersion = "TECP-0.1"

const (
	NonceLen  = 16
	PubKeyLen = 32
	SigLen    = 64
	HashLen   = 32
)

// Receipt is the signed core: exactly the nine fields in spec §3, in
// struct-tag order. Field order here is cosmetic — canon.Bytes sorts keys
// independently — but it is kept in spec order for readability.
type Receipt struct {
	Version    string   `json:"version"`
	CodeRef    string   `json:"code_ref"`
	TS         int64    `json:"ts"`
	Nonce      string   `json:"nonce"`
	InputHash  string   `json:"input_hash"`
	OutputHash string   `json:"output_hash"`
	PolicyIDs  []string `json:"policy_ids"`
	PubKey     string   `json:"pubkey"`
	Sig        string   `json:"sig"`
}

// unsigned mirrors Receipt with the sig field entirely absent (not just
// empty) since the signed payload must not contain a "sig" key at all.
type unsigned struct {
	Version    string   `json:"version"`
	CodeRef    string   `json:"code_ref"`
	TS         int64    `json:"ts"`
	Nonce      string   `json:"nonce"`
	InputHash  string   `json:"input_hash"`
	OutputHash string   `json:"output_hash"`
	PolicyIDs  []string `json:"policy_ids"`
	PubKey     string   `json:"pubkey"`
}

// SigningBytes returns the canonical bytes the signature is computed
// over: the eight core fields, excluding sig.
func (r Receipt) SigningBytes() ([]byte, error) {
	return canon.Bytes(unsigned{
		Version:    r.Version,
		CodeRef:    r.CodeRef,
		TS:         r.TS,
		Nonce:      r.Nonce,
		InputHash:  r.InputHash,
		OutputHash: r.OutputHash,
		PolicyIDs:  r.PolicyIDs,
		PubKey:     r.PubKey,
	})
}

// LeafBytes returns sha256(canonical_bytes(receipt_with_sig)), the frozen
// leaf derivation used as the Merkle leaf identity for this receipt.
func (r Receipt) LeafBytes() ([32]byte, error) {
	return canon.LeafBytes(r)
}

// LogInclusion is the unsigned "proof of ledger membership" extension.
type LogInclusion struct {
	LeafIndex uint64   `json:"leaf_index"`
	AuditPath []string `json:"audit_path"`
	STHRoot   string   `json:"sth_root"`
}

// KeyErasure records evidence that a no_retention-class enforcer zeroed
// its working buffers after use.
type KeyErasure struct {
	Scheme   string `json:"scheme"`
	Evidence string `json:"evidence"`
}

// Environment records where the computation ran, for operator-supplied
// context only; it carries no security weight.
type Environment struct {
	Region   string `json:"region,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// SignedTime is a third-party timestamp anchor, independent of the
// issuer's own ts field.
type SignedTime struct {
	TS  int64  `json:"ts"`
	Sig string `json:"sig"`
	Kid string `json:"kid"`
}

// Anchors bundles external attestations about the receipt's timing.
type Anchors struct {
	SignedTime *SignedTime `json:"signed_time,omitempty"`
}

// Extensions is the typed, bounded unsigned envelope attached to a
// receipt after signing. The Ext map exists for forward-compatible,
// non-normative annotations; it is never consulted by verification logic
// and is never folded into the signed core.
type Extensions struct {
	LogInclusion *LogInclusion          `json:"log_inclusion,omitempty"`
	KeyErasure   *KeyErasure            `json:"key_erasure,omitempty"`
	Environment  *Environment           `json:"environment,omitempty"`
	Anchors      *Anchors               `json:"anchors,omitempty"`
	Ext          map[string]interface{} `json:"ext,omitempty"`
}

// Envelope is the full wire shape: the signed receipt plus its optional
// unsigned extensions.
type Envelope struct {
	Receipt
	Extensions *Extensions `json:"extensions,omitempty"`
}

// ValidateStructure checks the byte-length and shape invariants from
// spec §3/§4.8 step 1, independent of signature or temporal validity.
// It decodes (and normalizes) every binary field, so callers receive
// E_STRUCT_LEN for bad lengths even before signature verification runs.
func (r Receipt) ValidateStructure() error {
	if r.Version == "" || r.CodeRef == "" {
		return errcodes.New(errcodes.EStructMissing, "version and code_ref are required")
	}
	nonce, err := canon.DecodeNormalized(r.Nonce)
	if err != nil {
		return errcodes.Wrap(errcodes.EStructType, "nonce is not valid base64url", err)
	}
	if len(nonce) != NonceLen {
		return errcodes.New(errcodes.EStructLen, "nonce must decode to 16 bytes")
	}
	if err := checkHashLen(r.InputHash, "input_hash"); err != nil {
		return err
	}
	if err := checkHashLen(r.OutputHash, "output_hash"); err != nil {
		return err
	}
	pub, err := canon.DecodeNormalized(r.PubKey)
	if err != nil {
		return errcodes.Wrap(errcodes.EStructType, "pubkey is not valid base64url", err)
	}
	if len(pub) != PubKeyLen {
		return errcodes.New(errcodes.EStructLen, "pubkey must decode to 32 bytes")
	}
	sig, err := canon.DecodeNormalized(r.Sig)
	if err != nil {
		return errcodes.Wrap(errcodes.EStructType, "sig is not valid base64url", err)
	}
	if len(sig) != SigLen {
		return errcodes.New(errcodes.EStructLen, "sig must decode to 64 bytes")
	}
	if !sortedUnique(r.PolicyIDs) {
		return errcodes.New(errcodes.EStructType, "policy_ids must be sorted ascending and unique")
	}
	return nil
}

func checkHashLen(s, field string) error {
	b, err := canon.DecodeNormalized(s)
	if err != nil {
		return errcodes.Wrap(errcodes.EStructType, field+" is not valid base64url", err)
	}
	if len(b) != HashLen {
		return errcodes.New(errcodes.EStructLen, field+" must decode to 32 bytes")
	}
	return nil
}

func sortedUnique(ids []string) bool {
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			return false
		}
	}
	return true
}

// SortPolicyIDs returns a sorted, deduplicated copy of ids, the normalization
// create() applies before canonicalizing (spec §4.3 step 3).
func SortPolicyIDs(ids []string) []string {
	if len(ids) == 0 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	// simple insertion sort; policy_ids lists are short
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// versionSemver maps the wire string "TECP-0.1" onto semver 0.1.0 so a
// future issuer can express monotonic version acceptance instead of a
// brittle string comparison.
func versionSemver(wire string) (*semver.Version, error) {
	v := strings.TrimPrefix(wire, "TECP-")
	return semver.NewVersion(v)
}

// VersionAtMost reports whether receiptVersion is semantically <= maxWire
// (e.g. a STRICT verifier pinned to accept up to "TECP-0.2").
func VersionAtMost(receiptVersion, maxWire string) (bool, error) {
	rv, err := versionSemver(receiptVersion)
	if err != nil {
		return false, errcodes.Wrap(errcodes.EStructType, "unparseable receipt version", err)
	}
	mv, err := versionSemver(maxWire)
	if err != nil {
		return false, errcodes.Wrap(errcodes.EStructType, "unparseable max version", err)
	}
	return rv.Compare(mv) <= 0, nil
}
