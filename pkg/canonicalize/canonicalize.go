// Package canonicalize produces the deterministic JSON form used as the
// exact byte sequence hashed and signed by the request-signing protocol.
// Signer and verifier must agree on every byte, so object keys are sorted
// lexicographically and HTML escaping is disabled.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical returns the canonical JSON encoding of v.
//
// Rules:
//   - object keys sorted lexicographically by UTF-8 bytes
//   - array order preserved
//   - numbers carried through json.Number so decimal text is preserved
//   - no HTML escaping, no insignificant whitespace
//
// Non-JSON-representable input (cycles, channels, funcs) fails loudly.
func Canonical(v any) ([]byte, error) {
	// Round-trip through encoding/json first so struct tags and custom
	// marshalers are respected before the deterministic re-encode.
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: decode intermediate: %w", err)
	}

	return encodeValue(generic)
}

// CanonicalString is Canonical with a string result.
func CanonicalString(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the SHA-256 hex digest of the canonical encoding of v.
func Hash(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encodeValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return []byte(t.String()), nil
	case string:
		return encodeScalar(t)
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := encodeValue(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := encodeScalar(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := encodeValue(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		// Only reachable if the intermediate decode produced something
		// unexpected, e.g. a float64 under a decoder without UseNumber.
		return encodeScalar(v)
	}
}

// encodeScalar encodes a single JSON scalar without HTML escaping.
func encodeScalar(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonicalize: encode scalar: %w", err)
	}
	// json.Encoder appends a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
