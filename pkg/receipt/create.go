package receipt

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"time"

	"github.com/tecp-protocol/tecp/pkg/canon"
	"github.com/tecp-protocol/tecp/pkg/errcodes"
	"github.com/tecp-protocol/tecp/pkg/policy"
)

// Signer is the capability Create needs from pkg/signer, expressed as an
// interface here to avoid an import cycle (pkg/signer does not import
// pkg/receipt; pkg/receipt depends on pkg/signer's *behavior* only).
type Signer interface {
	Sign(canonicalBytes []byte) ([]byte, error)
	PublicKeyBytes() []byte
}

// CreateParams is the caller-supplied input to Create, mirroring spec
// §4.3's create(params) contract.
type CreateParams struct {
	CodeRef   string
	Input     []byte
	Output    []byte
	PolicyIDs []string

	// Registry and PolicyCtx drive the C4 policy runtime pass. Registry
	// may be nil, in which case no enforcers run and Input passes
	// through unchanged.
	Registry  *policy.Registry
	PolicyCtx policy.Context

	// Now and RandSource are injection points for deterministic testing,
	// matching the teacher's WithClock pattern; both default to the real
	// clock/CSPRNG when left zero-valued.
	Now        func() time.Time
	RandSource func([]byte) (int, error)
}

// Create assembles, canonicalizes, and signs a receipt from params,
// applying the policy runtime first so input_hash reflects any
// transformation an enforcer made (spec §4.4's final sentence).
func Create(ctx context.Context, s Signer, params CreateParams) (Receipt, *Extensions, error) {
	if params.CodeRef == "" {
		return Receipt{}, nil, errcodes.New(errcodes.EStructMissing, "code_ref is required")
	}

	now := time.Now
	if params.Now != nil {
		now = params.Now
	}
	randRead := rand.Read
	if params.RandSource != nil {
		randRead = params.RandSource
	}

	finalInput := params.Input
	var evidence map[string]interface{}
	if params.Registry != nil {
		var err error
		finalInput, evidence, err = policy.Apply(ctx, params.Registry, params.PolicyIDs, params.Input, params.PolicyCtx)
		if err != nil {
			return Receipt{}, nil, err
		}
	}

	inputHash := sha256.Sum256(finalInput)
	outputHash := sha256.Sum256(params.Output)

	nonce := make([]byte, NonceLen)
	if _, err := randRead(nonce); err != nil {
		return Receipt{}, nil, errcodes.Wrap(errcodes.EStructType, "failed to generate nonce", err)
	}

	r := Receipt{
		Version:    CurrentVersion,
		CodeRef:    params.CodeRef,
		TS:         now().UnixMilli(),
		Nonce:      canon.EncodeUnpadded(nonce),
		InputHash:  canon.EncodeUnpadded(inputHash[:]),
		OutputHash: canon.EncodeUnpadded(outputHash[:]),
		PolicyIDs:  SortPolicyIDs(params.PolicyIDs),
		PubKey:     canon.EncodeUnpadded(s.PublicKeyBytes()),
	}

	sb, err := r.SigningBytes()
	if err != nil {
		return Receipt{}, nil, err
	}
	sig, err := s.Sign(sb)
	if err != nil {
		return Receipt{}, nil, err
	}
	r.Sig = canon.EncodeUnpadded(sig)

	var ext *Extensions
	if len(evidence) > 0 {
		ext = &Extensions{Ext: map[string]interface{}{"policy_enforced": evidence}}
		if ev, ok := evidence["no_retention"].(map[string]interface{}); ok {
			scheme, _ := ev["scheme"].(string)
			zeroedHash, _ := ev["post_erasure_hash"].(string)
			ext.KeyErasure = &KeyErasure{Scheme: scheme, Evidence: zeroedHash}
		}
	}

	return r, ext, nil
}
