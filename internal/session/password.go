package session

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	saltSize   = 8
	iterations = 1000

	// legacyPrefix marks a stored hash as using the older SHA-1 scheme,
	// kept only so existing credentials continue to verify (spec §4.5:
	// "a legacy prefix SALT_ triggers a SHA-1-based verification path").
	legacyPrefix = "SALT_"
)

// HashPassword returns a storable digest of password: 1000 rounds of
// SHA-256 salted with 8 random bytes, serialized as base64(salt ‖ hash)
// (spec §4.5).
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("session: generate salt: %w", err)
	}
	return encodeHash(salt, iterateSHA256(salt, password)), nil
}

// VerifyPassword reports whether password matches stored, which may be
// either the current SHA-256 scheme or a legacy SALT_-prefixed SHA-1
// hash.
func VerifyPassword(stored, password string) bool {
	if rest, ok := strings.CutPrefix(stored, legacyPrefix); ok {
		return verifyLegacy(rest, password)
	}
	salt, hash, err := decodeHash(stored)
	if err != nil {
		return false
	}
	return constantTimeEqual(hash, iterateSHA256(salt, password))
}

func iterateSHA256(salt []byte, password string) []byte {
	h := append(append([]byte{}, salt...), []byte(password)...)
	sum := sha256.Sum256(h)
	digest := sum[:]
	for i := 1; i < iterations; i++ {
		sum := sha256.Sum256(append(append([]byte{}, salt...), digest...))
		digest = sum[:]
	}
	return digest
}

func encodeHash(salt, hash []byte) string {
	return base64.StdEncoding.EncodeToString(append(salt, hash...))
}

func decodeHash(stored string) (salt, hash []byte, err error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, nil, fmt.Errorf("session: decode hash: %w", err)
	}
	if len(raw) <= saltSize {
		return nil, nil, fmt.Errorf("session: stored hash too short")
	}
	return raw[:saltSize], raw[saltSize:], nil
}

// verifyLegacy implements the pre-existing SHA-1 scheme: stored is
// "salt:hexHash" and hash is a single round of SHA-1(salt + password).
func verifyLegacy(stored, password string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 {
		return false
	}
	salt, wantHex := parts[0], parts[1]
	sum := sha1.Sum([]byte(salt + password))
	gotHex := fmt.Sprintf("%x", sum)
	return constantTimeEqual([]byte(gotHex), []byte(wantHex))
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
