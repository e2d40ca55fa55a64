// Package security provides security utilities for the upload service.
package security

import (
	"crypto/subtle"
	"path/filepath"
	"strings"
)

// PathTraversalChars contains characters that could be used for path traversal.
var PathTraversalChars = []string{"..", "/", "\\", "%2e", "%2f", "%5c"}

// SanitizeFilename sanitizes a filename to prevent path traversal attacks.
func SanitizeFilename(filename string) string {
	filename = filepath.Base(filename)

	// Repeat until stable: removing one sequence can join its neighbours
	// into another (`.\.` becomes "..").
	for {
		before := filename
		for _, char := range PathTraversalChars {
			filename = strings.ReplaceAll(filename, char, "")
		}
		if filename == before {
			break
		}
	}

	filename = strings.ReplaceAll(filename, "\x00", "")

	var sanitized strings.Builder
	for _, r := range filename {
		if r >= 32 && r != 127 {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if result == "" || result == "." {
		return "unnamed"
	}

	return result
}

// ValidateFilename checks if a filename is safe to use as-is.
func ValidateFilename(filename string) bool {
	if filename == "" || filename == "." {
		return false
	}

	for _, char := range PathTraversalChars {
		if strings.Contains(filename, char) {
			return false
		}
	}

	if strings.Contains(filename, "\x00") {
		return false
	}

	for _, r := range filename {
		if r < 32 || r == 127 {
			return false
		}
	}

	return true
}

// ConstantTimeCompare performs constant-time comparison of two strings.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
