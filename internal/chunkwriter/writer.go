// Package chunkwriter performs offset-addressed writes of one chunk's
// payload into a session's target file.
package chunkwriter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/auth-platform/file-upload/internal/domain"
	"github.com/auth-platform/file-upload/internal/security"
)

// Writer writes chunk payloads into target files rooted at uploadDir.
type Writer struct {
	uploadDir string
}

// New creates a Writer rooted at uploadDir. The directory is created if
// absent.
func New(uploadDir string) (*Writer, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("chunkwriter: create upload dir: %w", err)
	}
	return &Writer{uploadDir: uploadDir}, nil
}

// TargetPath returns the fixed on-disk path for a session's target file.
func (w *Writer) TargetPath(uploadID string) string {
	return filepath.Join(w.uploadDir, security.SanitizeFilename(uploadID))
}

// WriteChunk opens (or creates) the target file and issues one positional
// write of payload at chunkIndex*chunkSize, flushing before returning.
// expectedLen must equal the payload length exactly (§4.2's length check);
// a mismatch returns ErrValidation without touching the file.
func (w *Writer) WriteChunk(uploadID string, chunkIndex int, chunkSize int64, expectedLen int64, payload io.Reader) error {
	buf := make([]byte, expectedLen)
	n, err := io.ReadFull(payload, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return domain.NewDomainError(domain.ErrCodeWriteError, "read chunk payload", err)
	}
	if int64(n) != expectedLen {
		return domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("chunk %d: expected %d bytes, got %d", chunkIndex, expectedLen, n), nil)
	}
	// Reject any trailing bytes beyond expectedLen without mutating the file.
	var extra [1]byte
	if m, _ := payload.Read(extra[:]); m > 0 {
		return domain.NewDomainError(domain.ErrCodeValidation,
			fmt.Sprintf("chunk %d: payload exceeds expected length %d", chunkIndex, expectedLen), nil)
	}

	f, err := os.OpenFile(w.TargetPath(uploadID), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.NewDomainError(domain.ErrCodeWriteError, "open target file", err)
	}
	defer f.Close()

	offset := int64(chunkIndex) * chunkSize
	if _, err := f.WriteAt(buf, offset); err != nil {
		return domain.NewDomainError(domain.ErrCodeWriteError, "write chunk at offset", err)
	}
	if err := f.Sync(); err != nil {
		return domain.NewDomainError(domain.ErrCodeWriteError, "flush target file", err)
	}
	return nil
}

// Open opens the target file for reading, e.g. for the Digest Engine.
func (w *Writer) Open(uploadID string) (*os.File, error) {
	return os.Open(w.TargetPath(uploadID))
}

// Remove deletes the target file, ignoring a not-found error.
func (w *Writer) Remove(uploadID string) error {
	err := os.Remove(w.TargetPath(uploadID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size reports the current size of the target file.
func (w *Writer) Size(uploadID string) (int64, error) {
	info, err := os.Stat(w.TargetPath(uploadID))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
