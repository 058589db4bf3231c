// Package fingerprint derives stable identity keys for outbound calls.
//
// Two calls with the same operation ID and semantically identical arguments
// produce the same key: map keys are sorted at every level and strings are
// NFC-normalized before hashing, so argument insertion order and Unicode
// composition never cause spurious mismatches.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"

	"golang.org/x/text/unicode/norm"
)

// Of returns the fingerprint for operationID and args. args may be nil.
func Of(operationID string, args any) (string, error) {
	canon, err := canonicalize(args)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %s: %w", operationID, err)
	}

	// encoding/json writes map keys in sorted order.
	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %s: encoding arguments: %w", operationID, err)
	}

	sum := sha256.Sum256(data)

	return norm.NFC.String(operationID) + "#" + hex.EncodeToString(sum[:]), nil
}

// canonicalize round-trips v through JSON into generic maps and slices so
// struct values and maps with equal content compare equal, then normalizes
// every string.
func canonicalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Map && rv.Len() == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}

	return normalize(generic), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[norm.NFC.String(k)] = normalize(val)
		}

		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}

		return out
	default:
		return v
	}
}
