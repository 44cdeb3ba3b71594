package openapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StableHash hashes any JSON-marshalable value with recursively sorted
// object keys, so semantically identical values hash identically no matter
// how their keys were ordered in the input.
func StableHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value for hashing: %w", err)
	}

	// Round-trip through untyped maps: encoding/json writes map keys in
	// sorted order at every nesting level.
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return "", fmt.Errorf("failed to normalize value for hashing: %w", err)
	}
	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize value for hashing: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// hashSpecDocument hashes a raw OpenAPI document (JSON or YAML). The
// document is decoded to untyped values first, so a reordered but
// otherwise identical spec hashes the same.
func hashSpecDocument(spec []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(spec, &doc); err != nil {
		if err := yaml.Unmarshal(spec, &doc); err != nil {
			return "", fmt.Errorf("spec is neither valid JSON nor YAML: %w", err)
		}
	}
	return StableHash(doc)
}
