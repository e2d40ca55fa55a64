// Package peek does a best-effort listing of a ZIP container's top-level
// entries, purely as metadata — never extracting content.
package peek

import (
	"archive/zip"
	"path"
	"strings"

	"github.com/h2non/filetype"
)

const sniffLen = 261

// isZipMagic reports whether head starts with the ZIP local-file-header
// signature PK\x03\x04.
func isZipMagic(head []byte) bool {
	return len(head) >= 4 && head[0] == 0x50 && head[1] == 0x4B && head[2] == 0x03 && head[3] == 0x04
}

// LooksLikeZip sniffs the first bytes of a file the way a MIME detector
// would, without trusting the filename extension.
func LooksLikeZip(head []byte) bool {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if isZipMagic(head) {
		return true
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return false
	}
	return kind.MIME.Value == "application/zip"
}

// Entries lists the top-level (no "/" beyond a single trailing directory
// separator) names inside the zip file at targetPath. Any failure to open
// or parse the archive is the caller's to log and swallow — peeking never
// fails an otherwise-completed upload.
func Entries(targetPath string) ([]string, error) {
	r, err := zip.OpenReader(targetPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	seen := make(map[string]struct{})
	var names []string
	for _, f := range r.File {
		top := topLevelName(f.Name)
		if top == "" {
			continue
		}
		if _, ok := seen[top]; ok {
			continue
		}
		seen[top] = struct{}{}
		names = append(names, top)
	}
	return names, nil
}

// topLevelName returns the first path segment of a zip entry name, or ""
// for malformed entries (absolute paths, traversal).
func topLevelName(entry string) string {
	clean := path.Clean(strings.ReplaceAll(entry, "\\", "/"))
	if clean == "." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return ""
	}
	if idx := strings.Index(clean, "/"); idx >= 0 {
		return clean[:idx]
	}
	return clean
}
