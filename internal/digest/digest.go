// Package digest computes the final SHA-256 hash of an assembled upload.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// bufSize matches the io.Copy default internal buffer target; explicit here
// so the streaming cost of digesting a multi-gigabyte target file is visible.
const bufSize = 32 * 1024

// Compute streams content through SHA-256 and returns the hex digest,
// without holding the whole file in memory.
func Compute(content io.Reader) (string, error) {
	hasher := sha256.New()
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(hasher, content, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify reports whether content's digest matches expectedHex.
func Verify(content io.Reader, expectedHex string) (bool, error) {
	computed, err := Compute(content)
	if err != nil {
		return false, err
	}
	return computed == expectedHex, nil
}
