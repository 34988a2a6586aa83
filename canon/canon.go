// Package canon implements the deterministic, self-describing structural
// serialization ("canon") used both for at-rest storage of CentralLedger
// and PublicKeyRecord rows, and for forming the authority's signed byte
// string in the mirror chain. Every caller — storage and signing alike —
// must go through Bytes so the exact same serialization backs both uses.
package canon

import (
	"encoding/json"
	"fmt"
)

// Bytes renders v as canonical JSON: struct fields in declaration order
// (Go's encoding/json never reorders them), snake_case field names coming
// from each type's own `json:"..."` tags, byte slices as standard padded
// base64 (encoding/json's native []byte behavior), and integers as bare
// numeric literals. Passing a value containing a Go map produces
// nondeterministic key order and must not be used for anything that feeds
// a signature or an at-rest key — none of the chain types here do.
func Bytes(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal parses canonical JSON back into v.
func Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("canon: unmarshal: %w", err)
	}
	return nil
}
