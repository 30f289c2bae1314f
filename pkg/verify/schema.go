package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// envelopeSchema is a bundled JSON Schema for the wire Envelope shape: the
// nine signed receipt fields plus the optional extensions object. It runs
// ahead of the field-by-field ValidateStructure checks so a malformed wire
// payload (wrong type, missing required key, extra top-level junk) reports a
// precise JSON-pointer location instead of a generic decode error.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "https://tecp.dev/schema/envelope.json",
  "type": "object",
  "required": ["version", "code_ref", "ts", "nonce", "input_hash", "output_hash", "policy_ids", "pubkey", "sig"],
  "additionalProperties": false,
  "properties": {
    "version":    { "type": "string", "minLength": 1 },
    "code_ref":    { "type": "string", "minLength": 1 },
    "ts":          { "type": "integer" },
    "nonce":       { "type": "string" },
    "input_hash":  { "type": "string" },
    "output_hash": { "type": "string" },
    "policy_ids":  { "type": "array", "items": { "type": "string" } },
    "pubkey":      { "type": "string" },
    "sig":         { "type": "string" },
    "extensions": {
      "type": "object",
      "properties": {
        "log_inclusion": {
          "type": "object",
          "required": ["leaf_index", "audit_path", "sth_root"],
          "properties": {
            "leaf_index": { "type": "integer", "minimum": 0 },
            "audit_path": { "type": "array", "items": { "type": "string" } },
            "sth_root":   { "type": "string" }
          }
        },
        "key_erasure": {
          "type": "object",
          "required": ["scheme", "evidence"],
          "properties": {
            "scheme":   { "type": "string" },
            "evidence": { "type": "string" }
          }
        },
        "environment": {
          "type": "object",
          "properties": {
            "region":   { "type": "string" },
            "provider": { "type": "string" }
          }
        },
        "anchors": {
          "type": "object",
          "properties": {
            "signed_time": {
              "type": "object",
              "required": ["ts", "sig", "kid"],
              "properties": {
                "ts":  { "type": "integer" },
                "sig": { "type": "string" },
                "kid": { "type": "string" }
              }
            }
          }
        },
        "ext": { "type": "object" }
      }
    }
  }
}`

var (
	schemaOnce    sync.Once
	schemaCompile *jsonschema.Schema
	schemaErr     error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("envelope.json", bytes.NewReader([]byte(envelopeSchema))); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schemaCompile, schemaErr = c.Compile("envelope.json")
	})
	return schemaCompile, schemaErr
}

// ValidateSchema checks raw (the undecoded wire bytes of an Envelope)
// against the bundled JSON Schema, ahead of any struct-level decoding. This
// is the first of the pipeline's structural checks (spec §4.9 step 1,
// "parse" sub-step): callers that have the raw bytes on hand (such as the
// CLI's verify command) should run this before json.Unmarshal so a
// malformed payload is reported with a JSON pointer rather than a bare
// decode error.
func ValidateSchema(raw []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return errcodes.Wrap(errcodes.EStructType, "schema compile failed", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return errcodes.Wrap(errcodes.EStructType, "invalid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return errcodes.Wrap(errcodes.EStructType, "schema validation failed", err)
	}
	return nil
}
