// Package utils – canonical JSON.
//
// Order.Items, Order.RawData, and OrderCache.SourceItems are stored as
// serialized text, and the upstream feed re-serializes records with
// unstable key order. Every deep comparison in the sync engine therefore
// goes through CanonicalJSON first: decode into generic values, re-encode
// with encoding/json (which sorts object keys), and compare the results.
// A raw byte comparison of two blobs is never safe.
package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON returns the canonical serialized form of a JSON document:
// object keys sorted, no insignificant whitespace. It fails on input that
// is not valid JSON.
func CanonicalJSON(raw []byte) ([]byte, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // keep 2 and 2.0 distinct from 2.000000001, avoid float drift
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// CanonicalString is CanonicalJSON for string blobs.
func CanonicalString(raw string) (string, error) {
	out, err := CanonicalJSON([]byte(raw))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// JSONEqual reports whether two JSON documents are structurally equal,
// ignoring key order and formatting. The second return value is false when
// either side fails to parse; callers decide the fail-safe direction.
func JSONEqual(a, b []byte) (equal bool, ok bool) {
	ca, err := CanonicalJSON(a)
	if err != nil {
		return false, false
	}
	cb, err := CanonicalJSON(b)
	if err != nil {
		return false, false
	}
	return bytes.Equal(ca, cb), true
}

// JSONStringsEqual is JSONEqual for string blobs.
func JSONStringsEqual(a, b string) (equal bool, ok bool) {
	return JSONEqual([]byte(a), []byte(b))
}
