// Package canon produces the frozen canonical byte representation that
// every TECP signature and leaf hash is computed over. The rules are
// spelled out in full because changing any one of them invalidates every
// signature ever produced: compact JSON, UTF-8, object keys sorted by
// code point, no duplicate keys, no floats in the signed payload, and no
// HTML-escaping of strings.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/tecp-protocol/tecp/pkg/errcodes"
)

// Bytes produces the canonical byte representation of v. v is first
// marshaled with the standard library (so Go struct tags are honored),
// scanned for the rules the JCS transform does not itself enforce
// (duplicate object keys, floating-point numbers), and then passed
// through the RFC 8785 transform for key ordering and escaping.
func Bytes(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.ECanonType, "marshal failed", err)
	}
	if err := reject(raw); err != nil {
		return nil, err
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, errcodes.Wrap(errcodes.ECanonType, "jcs transform failed", err)
	}
	return out, nil
}

// LeafBytes returns sha256(canonical_bytes(v)), the frozen leaf/hash
// derivation used throughout the spec (receipt leaves, input/output
// hashes treated as opaque bytes).
func LeafBytes(v interface{}) ([32]byte, error) {
	cb, err := Bytes(v)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(cb), nil
}

// reject walks the decoded token stream of raw and returns an
// *errcodes.Error if it contains a duplicate object key or a JSON number
// that is not an integer. encoding/json's map decode silently keeps the
// last of a duplicate key, which JCS alone would not catch, so this walks
// the token stream directly rather than decoding into a map first.
func reject(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return errcodes.Wrap(errcodes.ECanonType, "malformed JSON", err)
	}
	return rejectValue(dec, tok)
}

func rejectValue(dec *json.Decoder, tok json.Token) error {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return rejectObject(dec)
		case '[':
			return rejectArray(dec)
		}
		return nil
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			return errcodes.New(errcodes.ECanonFloat, "signed payload must contain only integers, got "+s)
		}
		return nil
	default:
		return nil
	}
}

func rejectObject(dec *json.Decoder) error {
	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return errcodes.Wrap(errcodes.ECanonType, "malformed object key", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return errcodes.New(errcodes.ECanonType, "object key is not a string")
		}
		if seen[key] {
			return errcodes.New(errcodes.ECanonDuplicate, "duplicate object key "+key)
		}
		seen[key] = true

		valTok, err := dec.Token()
		if err != nil {
			return errcodes.Wrap(errcodes.ECanonType, "malformed object value", err)
		}
		if err := rejectValue(dec, valTok); err != nil {
			return err
		}
	}
	// consume closing '}'
	_, err := dec.Token()
	return err
}

func rejectArray(dec *json.Decoder) error {
	for dec.More() {
		valTok, err := dec.Token()
		if err != nil {
			return errcodes.Wrap(errcodes.ECanonType, "malformed array element", err)
		}
		if err := rejectValue(dec, valTok); err != nil {
			return err
		}
	}
	// consume closing ']'
	_, err := dec.Token()
	return err
}

// EncodeUnpadded base64url-encodes b without padding, the wire format for
// every binary field in the spec (nonce, hashes, pubkey, sig).
func EncodeUnpadded(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeNormalized decodes s as base64url, tolerating the non-canonical
// encodings the spec requires verifiers to accept: padding characters and
// standard (not URL-safe) alphabet characters. Canonicalization itself
// never re-encodes; only verification normalizes before comparing.
func DecodeNormalized(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	return base64.RawURLEncoding.DecodeString(s)
}
