package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash computes the SHA-256 of data as a 64-character hex string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DeviceKey builds the cache key for one device's rendered artifacts.
// The fingerprint captures every input that influences the render, so
// any topology change invalidates the key.
func DeviceKey(lab, device, fingerprint string) string {
	return fmt.Sprintf("device:%s:%s:%s", lab, device, fingerprint)
}

// Fingerprint hashes an arbitrary render input. Marshalling through
// JSON keeps the fingerprint stable across runs for equal inputs.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}
