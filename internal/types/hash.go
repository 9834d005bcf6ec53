package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON returns the RFC 8785 canonical encoding of v
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize value: %w", err)
	}
	return canonical, nil
}

// CanonicalHash returns the hex SHA-256 digest of the canonical encoding of v
func CanonicalHash(v interface{}) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 digest of data
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashHex concatenates parts and returns the hex SHA-256 digest
func HashHex(parts ...string) string {
	return HashBytes([]byte(strings.Join(parts, "")))
}
