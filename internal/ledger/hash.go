package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ContentHash returns the lowercase hex SHA-256 of the canonical JSON
// serialization of content. Go's encoder sorts map keys, so two semantically
// equal payloads hash identically regardless of insertion order. Only the
// content participates; title, type, and other metadata stay outside the
// hash so relabeling an item is detectable as a new item, not a silent edit.
func ContentHash(content map[string]any) (string, error) {
	canonical, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("ledger: canonicalize content: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the hash of content and reports whether it matches the
// stored hash. Consumers use this to detect tampering in exported bundles.
func Verify(content map[string]any, storedHash string) (bool, error) {
	h, err := ContentHash(content)
	if err != nil {
		return false, err
	}
	return h == storedHash, nil
}
