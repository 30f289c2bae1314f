// Package client provides the wire types for the TECP ledger HTTP API
// (spec §6): the same shapes internal/ledgerd encodes, duplicated here
// so SDK consumers don't need to import the server module.
package client

// ProblemDetail is the RFC 7807 error envelope every non-2xx response
// carries, matching internal/apierr.ProblemDetail.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Receipt is the nine signed core fields of a TECP receipt (spec §3).
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

// LogInclusion is the unsigned inclusion-proof extension attached to a
// receipt once it has been appended to a log.
type LogInclusion struct {
	LeafIndex uint64   `json:"leaf_index"`
	AuditPath []string `json:"audit_path"`
	STHRoot   string   `json:"sth_root"`
}

// Extensions is a receipt's optional unsigned envelope.
type Extensions struct {
	LogInclusion *LogInclusion          `json:"log_inclusion,omitempty"`
	Ext          map[string]interface{} `json:"ext,omitempty"`
}

// Envelope is the full wire shape of a receipt: the signed core plus
// its optional extensions.
type Envelope struct {
	Receipt
	Extensions *Extensions `json:"extensions,omitempty"`
}

// STH is a signed tree head, as published at GET /v1/log/sth.
type STH struct {
	Size uint64 `json:"size"`
	Root string `json:"root"`
	TS   int64  `json:"ts"`
	Kid  string `json:"kid"`
	Sig  string `json:"sig"`
}

// AppendRequest is the body of POST /v1/log/entries.
type AppendRequest struct {
	LeafHash string                 `json:"leaf_hash"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AppendResponse is the response of POST /v1/log/entries.
type AppendResponse struct {
	Seq      uint64 `json:"seq"`
	Replayed bool   `json:"replayed"`
	STH      STH    `json:"sth"`
}

// Entry is one row of the append-only log, as returned by the entries
// endpoints.
type Entry struct {
	Seq       uint64                 `json:"seq"`
	Leaf      string                 `json:"leaf"`
	CreatedAt string                 `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ProofResponse is the response of GET /v1/log/proof.
type ProofResponse struct {
	Seq       uint64   `json:"seq"`
	AuditPath []string `json:"audit_path"`
	STH       STH      `json:"sth"`
}

// JWK is a single entry of the JWKS response, restricted to the fields
// an Ed25519 verification key actually carries.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
}

// JWKSet is the response of GET /.well-known/tecp-log-jwks.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}
