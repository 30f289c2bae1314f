// Package profile defines the LITE and STRICT acceptance profiles spec
// §3 binds verification to: how stale a receipt may be, how much clock
// skew is tolerated, and whether policy_ids/log_inclusion are required.
package profile

import "time"

// Name identifies a profile.
type Name string

const (
	LITE   Name = "LITE"
	STRICT Name = "STRICT"
)

// Rules is the concrete set of knobs a profile pins.
type Rules struct {
	Name Name

	// MaxAge bounds how old a receipt's ts may be relative to verification
	// time before it is rejected as expired.
	MaxAge time.Duration

	// MaxSkew bounds how far into the future a receipt's ts may be before
	// it is rejected as not-yet-valid.
	MaxSkew time.Duration

	// RequirePolicyIDs requires policy_ids to be non-empty and drawn from
	// a known registry.
	RequirePolicyIDs bool

	// RequireLogInclusion requires caller-supplied inclusion material
	// (verify.Options.Inclusion) with a signed STH, rather than treating
	// its absence as a warning. The envelope's log_inclusion extension is
	// not consulted.
	RequireLogInclusion bool

	// UnknownPolicyIsFatal controls whether an unrecognized policy id
	// fails verification outright (STRICT) or is surfaced as a warning
	// (LITE).
	UnknownPolicyIsFatal bool
}

// Lite is the permissive profile: spot-checking and local development.
// Per spec §3, policy_ids may be empty and log_inclusion is optional.
var Lite = Rules{
	Name:                 LITE,
	MaxAge:               24 * time.Hour,
	MaxSkew:              120 * time.Second,
	RequirePolicyIDs:     false,
	RequireLogInclusion:  false,
	UnknownPolicyIsFatal: false,
}

// Strict is the production-grade profile: non-empty known policy_ids
// and required inclusion material with a signed STH, with a much tighter
// clock-skew tolerance.
var Strict = Rules{
	Name:                 STRICT,
	MaxAge:               24 * time.Hour,
	MaxSkew:              10 * time.Second,
	RequirePolicyIDs:     true,
	RequireLogInclusion:  true,
	UnknownPolicyIsFatal: true,
}

// Resolve maps a profile name to its Rules, defaulting to Lite for an
// unrecognized or empty name.
func Resolve(name Name) Rules {
	if name == STRICT {
		return Strict
	}
	return Lite
}
