// Package policy implements the TECP policy runtime: a registry of named
// enforcers applied, in caller order, to a computation's input before it
// is signed. Enforcers are an explicit interface owned by a per-call
// Registry rather than a global singleton, so a runtime context can be
// constructed fresh for every request.
package policy

import (
	"context"
	"time"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// Result is what a single enforcer reports after inspecting (and
// possibly transforming) the input.
type Result struct {
	Allowed          bool
	TransformedInput []byte
	Evidence         map[string]interface{}
	Violations       []string
}

// Context carries the ambient information an enforcer needs beyond the
// raw input bytes: timing for ttl_* enforcers, and a free-form attribute
// bag for CEL-backed declarative enforcers (region, action, principal).
type Context struct {
	StartTime time.Time
	Now       time.Time
	Attrs     map[string]interface{}
}

// Enforcer is the capability every policy runtime participant exposes.
// id() may be a concrete policy id ("no_pii") or a class prefix pattern
// ("ttl_*"); the Registry resolves both forms.
type Enforcer interface {
	ID() string
	Enforce(ctx context.Context, input []byte, ectx Context) (Result, error)
}

// Registry holds the enforcers available to a single create() call. It
// is constructed per-request (or per-issuer), never shared as global
// mutable state.
type Registry struct {
	byExactID map[string]Enforcer
	byPrefix  map[string]Enforcer // key is the prefix before "_*", e.g. "ttl"
}

// NewRegistry builds a Registry from the given enforcers.
func NewRegistry(enforcers ...Enforcer) *Registry {
	r := &Registry{
		byExactID: make(map[string]Enforcer),
		byPrefix:  make(map[string]Enforcer),
	}
	for _, e := range enforcers {
		r.Register(e)
	}
	return r
}

// Register adds (or replaces) an enforcer. An id ending in "_*" is
// treated as a class pattern matching any policy_id sharing that prefix.
func (r *Registry) Register(e Enforcer) {
	id := e.ID()
	if len(id) > 2 && id[len(id)-2:] == "_*" {
		r.byPrefix[id[:len(id)-2]] = e
	} else {
		r.byExactID[id] = e
	}
}

// Lookup resolves a concrete policy_id to the enforcer that handles it,
// trying an exact match before a class-prefix match.
func (r *Registry) Lookup(policyID string) (Enforcer, bool) {
	if e, ok := r.byExactID[policyID]; ok {
		return e, true
	}
	for i := len(policyID) - 1; i >= 0; i-- {
		if policyID[i] == '_' {
			if e, ok := r.byPrefix[policyID[:i]]; ok {
				return e, true
			}
		}
	}
	return nil, false
}

// Apply threads input through every enforcer named in policyIDs, in
// order, per spec §4.4. It returns the final transformed input and the
// aggregated evidence map destined for the unsigned ext.policy_enforced
// extension. Unknown policy ids are skipped (declarative ids with no
// registered enforcer are metadata-only and always pass); the caller is
// responsible for rejecting unknown ids under STRICT profile rules
// (E_POLICY_UNKNOWN), which belongs to the verifier, not the runtime.
func Apply(ctx context.Context, reg *Registry, policyIDs []string, input []byte, ectx Context) ([]byte, map[string]interface{}, error) {
	current := input
	evidence := make(map[string]interface{}, len(policyIDs))

	for _, id := range policyIDs {
		e, ok := reg.Lookup(id)
		if !ok {
			continue
		}
		res, err := e.Enforce(ctx, current, ectx)
		if err != nil {
			return nil, nil, err
		}
		if !res.Allowed {
			return nil, nil, errcodes.New(errcodes.EPolicyDenied, "policy "+id+" denied the request")
		}
		if res.TransformedInput != nil {
			current = res.TransformedInput
		}
		if res.Evidence != nil {
			evidence[id] = res.Evidence
		}
	}
	return current, evidence, nil
}
