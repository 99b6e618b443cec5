// Package fingerprint provides the canonical-JSON SHA-256 hashing used
// across startup summaries (§4.5), the parity hash (§4.6), and panel
// envelopes/manifests (§4.7). Grounded on the teacher's direct
// crypto/sha256 usage in infrastructure/datafeed/service.go; no pack
// repo ships a canonicalization library, so stdlib encoding/json (whose
// map[string]interface{} marshaling already sorts keys) plus
// crypto/sha256 is the correct minimal tool here.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Canonical marshals v to compact JSON with object keys in sorted
// order at every level, structs included: v is marshaled once, decoded
// into generic maps and slices, and marshaled again, so a struct and the
// map it unmarshals into produce the same bytes.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// SHA256Hex returns the full 64-hex-char SHA-256 digest of the
// canonical encoding of v.
func SHA256Hex(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Truncated returns the first n hex characters of the SHA-256 digest of
// v's canonical encoding. Used for the 16-hex parity hash and the
// 12-hex panel envelope hash.
func Truncated(v interface{}, n int) (string, error) {
	full, err := SHA256Hex(v)
	if err != nil {
		return "", err
	}
	if n >= len(full) {
		return full, nil
	}
	return full[:n], nil
}
