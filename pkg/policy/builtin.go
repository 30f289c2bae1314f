package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// piiPatterns is a small, deterministic set of regexes used by NoPII.
// Real deployments are expected to extend or replace this set; it is not
// a substitute for a dedicated PII-detection service.
var piiPatterns = map[string]*regexp.Regexp{
	"email": regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"ssn":   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"phone": regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
}

// NoPII redacts matches of piiPatterns and reports a per-pattern match
// count as evidence. It never denies: redaction, not rejection, is the
// contract for this enforcer.
type NoPII struct{}

func (NoPII) ID() string { return "no_pii" }

func (NoPII) Enforce(_ context.Context, input []byte, _ Context) (Result, error) {
	redacted := string(input)
	counts := make(map[string]interface{}, len(piiPatterns))
	for name, re := range piiPatterns {
		matches := re.FindAllString(redacted, -1)
		counts[name] = len(matches)
		if len(matches) > 0 {
			redacted = re.ReplaceAllString(redacted, "["+strings.ToUpper(name)+"_REDACTED]")
		}
	}
	return Result{
		Allowed:          true,
		TransformedInput: []byte(redacted),
		Evidence:         map[string]interface{}{"matches": counts},
	}, nil
}

// TTL rejects once ctx.Now - ctx.StartTime exceeds the bound in
// ectx.Attrs["ttl_max_seconds"] (an int number of seconds, which
// ParseTTLSeconds extracts from an id such as "ttl_300"). Without that
// attribute it records evidence only and always allows.
type TTL struct{}

func (TTL) ID() string { return "ttl_*" }

func (TTL) Enforce(_ context.Context, input []byte, ectx Context) (Result, error) {
	// The concrete policy id isn't passed to Enforce directly; callers
	// that need per-id TTL bounds should wrap Apply per id or attach the
	// bound via ectx.Attrs["ttl_max_seconds"]. Apply() resolves TTL by
	// class, so the max duration travels through ectx.
	maxSeconds, _ := ectx.Attrs["ttl_max_seconds"].(int)
	if maxSeconds <= 0 {
		// No explicit bound supplied: evidence-only, always allowed.
		return Result{Allowed: true, Evidence: map[string]interface{}{"bounded": false}}, nil
	}
	elapsed := ectx.Now.Sub(ectx.StartTime)
	remaining := float64(maxSeconds) - elapsed.Seconds()
	if remaining < 0 {
		return Result{
			Allowed:  false,
			Evidence: map[string]interface{}{"elapsed_seconds": elapsed.Seconds(), "max_seconds": maxSeconds},
		}, nil
	}
	return Result{
		Allowed:          true,
		TransformedInput: input,
		Evidence:         map[string]interface{}{"elapsed_seconds": elapsed.Seconds(), "remaining_seconds": remaining},
	}, nil
}

// ParseTTLSeconds extracts the integer suffix of a "ttl_<seconds>" policy
// id, for callers that populate ectx.Attrs["ttl_max_seconds"] before
// invoking Apply.
func ParseTTLSeconds(policyID string) (int, error) {
	const prefix = "ttl_"
	if !strings.HasPrefix(policyID, prefix) {
		return 0, errcodes.New(errcodes.EPolicyUnknown, "not a ttl_* policy id: "+policyID)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(policyID, prefix))
	if err != nil {
		return 0, errcodes.Wrap(errcodes.EPolicyUnknown, "ttl_* suffix is not an integer", err)
	}
	return n, nil
}

// NoNetwork declares computation isolation. It performs no check of its
// own; it exists to attach evidence that the declaration was present.
type NoNetwork struct{}

func (NoNetwork) ID() string { return "no_network" }

func (NoNetwork) Enforce(_ context.Context, input []byte, _ Context) (Result, error) {
	return Result{Allowed: true, TransformedInput: input, Evidence: map[string]interface{}{"declared": true}}, nil
}

// NoRetention is declarative per spec §4.4 ("recorded in policy_ids
// only") but TECP gives it a concrete writer: it zeroes its copy of the
// input after hashing it, and attaches key_erasure-shaped evidence
// recording the scheme and a hash of the zeroed buffer, so the receipt's
// key_erasure extension always has a producer.
type NoRetention struct{}

func (NoRetention) ID() string { return "no_retention" }

func (NoRetention) Enforce(_ context.Context, input []byte, _ Context) (Result, error) {
	buf := make([]byte, len(input))
	copy(buf, input)
	sum := sha256.Sum256(buf)
	for i := range buf {
		buf[i] = 0
	}
	zeroedSum := sha256.Sum256(buf)
	return Result{
		Allowed:          true,
		TransformedInput: input,
		Evidence: map[string]interface{}{
			"scheme":            "zeroed-buffer",
			"pre_erasure_hash":  hex.EncodeToString(sum[:]),
			"post_erasure_hash": hex.EncodeToString(zeroedSum[:]),
		},
	}, nil
}

// Declarative is a no-op, always-allowed enforcer for policy classes
// that are pure metadata (region_*, no_training, and any other id the
// issuer wants recorded without behavioral enforcement).
type Declarative struct {
	id string
}

// NewDeclarative returns a Declarative enforcer bound to id (which may
// be a concrete id or a "prefix_*" class).
func NewDeclarative(id string) Declarative { return Declarative{id: id} }

func (d Declarative) ID() string { return d.id }

func (d Declarative) Enforce(_ context.Context, input []byte, _ Context) (Result, error) {
	return Result{
		Allowed:          true,
		TransformedInput: input,
		Evidence:         map[string]interface{}{"declared": fmt.Sprintf("%s recorded, not enforced", d.id)},
	}, nil
}
