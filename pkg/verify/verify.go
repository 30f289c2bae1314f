// Package verify implements the receipt verification pipeline: a
// sequence of structural, temporal, signature, inclusion, and policy
// checks run in order, matching spec §4.9's fail-fast step list. The
// accumulate-CheckResult reporting style is adapted from
// core/pkg/verifier/verifier.go's offline bundle verifier.
package verify

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tecp-protocol/tecp/pkg/canon"
	"github.com/tecp-protocol/tecp/pkg/errcodes"
	"github.com/tecp-protocol/tecp/pkg/merkle"
	"github.com/tecp-protocol/tecp/pkg/policy"
	"github.com/tecp-protocol/tecp/pkg/profile"
	"github.com/tecp-protocol/tecp/pkg/receipt"
	"github.com/tecp-protocol/tecp/pkg/signer"
	"github.com/tecp-protocol/tecp/pkg/sth"
)

// CheckResult is one named step of the verification pipeline.
type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Report is the structured outcome of Verify. TraceID is generated fresh
// per call (not part of any signed field) so a verify report can be
// correlated across logs the way an append's X-Request-ID can.
type Report struct {
	Valid    bool          `json:"valid"`
	Profile  profile.Name  `json:"profile"`
	TraceID  string        `json:"trace_id"`
	Checks   []CheckResult `json:"checks"`
	Warnings []string      `json:"warnings,omitempty"`
}

func (r *Report) addCheck(c CheckResult) {
	r.Checks = append(r.Checks, c)
	if !c.Pass {
		r.Valid = false
	}
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Inclusion is the caller-supplied material Verify checks the receipt's
// leaf against: the sequence number, the audit path, and the STH it is
// claimed against. Verify takes inclusion material only from here; the
// envelope's log_inclusion extension is not read.
type Inclusion struct {
	Seq       uint64
	AuditPath [][32]byte
	STH       sth.STH
}

// Options bundles everything Verify needs beyond the receipt itself.
type Options struct {
	Profile   profile.Rules
	Keyring   *sth.Keyring
	Registry  *policy.Registry
	Now       time.Time
	Inclusion *Inclusion // nil if the caller has no inclusion material to check
}

// Verify runs the full pipeline against env (the 9-field receipt plus
// its optional extensions) and returns a Report. It never panics and
// never returns a Go error for a receipt-shaped failure — every
// rejection surfaces as a failed CheckResult so callers get the full
// set of problems, not just the first one, matching spec §4.9's
// "accumulate and report" contract. Pipeline steps still short-circuit
// once a prerequisite for a later step is missing (e.g. there is no
// point running the policy step against a structurally invalid
// receipt), mirroring the source's fail-fast staging.
func Verify(env receipt.Envelope, opts Options) Report {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	report := Report{Valid: true, Profile: opts.Profile.Name, TraceID: uuid.NewString()}

	if !structuralStep(&report, env) {
		return report
	}
	if !temporalStep(&report, env.Receipt, opts) {
		return report
	}
	if !signatureStep(&report, env.Receipt, opts) {
		return report
	}
	inclusionStep(&report, env, opts)
	policyStep(&report, env.Receipt, opts)

	return report
}

func structuralStep(report *Report, env receipt.Envelope) bool {
	if err := env.Receipt.ValidateStructure(); err != nil {
		report.addCheck(CheckResult{Name: "structure", Pass: false, Detail: err.Error(), Code: codeOf(err)})
		return false
	}
	report.addCheck(CheckResult{Name: "structure", Pass: true})
	return true
}

func temporalStep(report *Report, r receipt.Receipt, opts Options) bool {
	ts := time.UnixMilli(r.TS)
	age := opts.Now.Sub(ts)

	if age > opts.Profile.MaxAge {
		report.addCheck(CheckResult{
			Name: "temporal", Pass: false,
			Detail: fmt.Sprintf("receipt age %s exceeds max_age %s", age, opts.Profile.MaxAge),
			Code:   string(errcodes.ETSExpired),
		})
		return false
	}
	if ts.Sub(opts.Now) > opts.Profile.MaxSkew {
		report.addCheck(CheckResult{
			Name: "temporal", Pass: false,
			Detail: fmt.Sprintf("receipt ts is %s ahead of verifier clock, exceeds max_skew %s", ts.Sub(opts.Now), opts.Profile.MaxSkew),
			Code:   string(errcodes.ETSFuture),
		})
		return false
	}
	report.addCheck(CheckResult{Name: "temporal", Pass: true})
	return true
}

func signatureStep(report *Report, r receipt.Receipt, opts Options) bool {
	sb, err := r.SigningBytes()
	if err != nil {
		report.addCheck(CheckResult{Name: "signature", Pass: false, Detail: err.Error(), Code: codeOf(err)})
		return false
	}

	pubBytes, err := canon.DecodeNormalized(r.PubKey)
	if err != nil {
		report.addCheck(CheckResult{Name: "signature", Pass: false, Detail: "pubkey is not valid base64url", Code: string(errcodes.ESigInvalid)})
		return false
	}
	sigBytes, err := canon.DecodeNormalized(r.Sig)
	if err != nil {
		report.addCheck(CheckResult{Name: "signature", Pass: false, Detail: "sig is not valid base64url", Code: string(errcodes.ESigInvalid)})
		return false
	}

	if opts.Keyring != nil {
		kid := sth.DeriveKid(ed25519.PublicKey(pubBytes))
		entry, err := opts.Keyring.Resolve(kid, time.UnixMilli(r.TS))
		if err == nil {
			if verr := signer.Verify(entry.PubKey, sb, sigBytes); verr != nil {
				report.addCheck(CheckResult{Name: "signature", Pass: false, Detail: verr.Error(), Code: string(errcodes.ESigInvalid)})
				return false
			}
			report.addCheck(CheckResult{Name: "signature", Pass: true})
			return true
		}
	}

	// No keyring (or no matching entry): verify against the embedded
	// pubkey directly. This is the "self-verifying receipt" path spec §3
	// describes for offline/air-gapped verification.
	if err := signer.Verify(pubBytes, sb, sigBytes); err != nil {
		report.addCheck(CheckResult{Name: "signature", Pass: false, Detail: err.Error(), Code: string(errcodes.ESigInvalid)})
		return false
	}
	report.addCheck(CheckResult{Name: "signature", Pass: true})
	return true
}

func inclusionStep(report *Report, env receipt.Envelope, opts Options) {
	if opts.Inclusion == nil {
		if opts.Profile.RequireLogInclusion {
			report.addCheck(CheckResult{Name: "inclusion", Pass: false, Detail: "log_inclusion required by profile but not provided", Code: string(errcodes.EProofMalformed)})
		} else {
			report.warn("no log_inclusion material provided; inclusion not checked")
			report.addCheck(CheckResult{Name: "inclusion", Pass: true, Detail: "skipped (not required)"})
		}
		return
	}

	if opts.Keyring == nil {
		report.addCheck(CheckResult{Name: "inclusion", Pass: false, Detail: "no keyring supplied to verify the STH signature", Code: string(errcodes.EKeyUnknown)})
		return
	}
	if err := sth.VerifySTH(opts.Keyring, opts.Inclusion.STH); err != nil {
		report.addCheck(CheckResult{Name: "inclusion", Pass: false, Detail: "STH signature invalid: " + err.Error(), Code: codeOf(err)})
		return
	}

	leaf, err := env.Receipt.LeafBytes()
	if err != nil {
		report.addCheck(CheckResult{Name: "inclusion", Pass: false, Detail: "cannot compute leaf bytes: " + err.Error(), Code: codeOf(err)})
		return
	}
	var root [32]byte
	rootBytes, err := hex.DecodeString(opts.Inclusion.STH.Root)
	if err != nil || len(rootBytes) != 32 {
		report.addCheck(CheckResult{Name: "inclusion", Pass: false, Detail: "STH root is not valid hex", Code: string(errcodes.EProofMalformed)})
		return
	}
	copy(root[:], rootBytes)

	if !merkle.VerifyAuditPath(leaf[:], opts.Inclusion.Seq, opts.Inclusion.STH.Size, opts.Inclusion.AuditPath, root) {
		report.addCheck(CheckResult{Name: "inclusion", Pass: false, Detail: "audit path does not verify against STH root", Code: string(errcodes.EProofMismatch)})
		return
	}
	report.addCheck(CheckResult{Name: "inclusion", Pass: true})
}

func policyStep(report *Report, r receipt.Receipt, opts Options) {
	if len(r.PolicyIDs) == 0 {
		if opts.Profile.RequirePolicyIDs {
			report.addCheck(CheckResult{Name: "policy", Pass: false, Detail: "profile requires non-empty policy_ids", Code: string(errcodes.EPolicyUnknown)})
		} else {
			report.addCheck(CheckResult{Name: "policy", Pass: true, Detail: "no policy_ids"})
		}
		return
	}

	if opts.Registry == nil {
		report.warn("no policy registry supplied; policy_ids not resolved")
		report.addCheck(CheckResult{Name: "policy", Pass: true, Detail: "skipped (no registry)"})
		return
	}

	unknown := make([]string, 0)
	for _, id := range r.PolicyIDs {
		if _, ok := opts.Registry.Lookup(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) == 0 {
		report.addCheck(CheckResult{Name: "policy", Pass: true})
		return
	}

	if opts.Profile.UnknownPolicyIsFatal {
		report.addCheck(CheckResult{
			Name: "policy", Pass: false,
			Detail: fmt.Sprintf("unknown policy ids: %v", unknown),
			Code:   string(errcodes.EPolicyUnknown),
		})
		return
	}
	report.warn(fmt.Sprintf("unknown policy ids (non-fatal under %s): %v", opts.Profile.Name, unknown))
	report.addCheck(CheckResult{Name: "policy", Pass: true, Detail: "unknown ids tolerated under profile"})
}

func codeOf(err error) string {
	var e *errcodes.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return ""
}
