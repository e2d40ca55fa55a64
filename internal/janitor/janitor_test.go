package janitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auth-platform/file-upload/internal/chunkwriter"
	"github.com/auth-platform/file-upload/internal/domain"
	"github.com/auth-platform/file-upload/internal/observability"
	"github.com/auth-platform/file-upload/internal/store"
)

var testMetrics = observability.NewMetrics("janitor_test")

func newTestJanitor(t *testing.T) (*Janitor, store.Store, *chunkwriter.Writer, string) {
	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "upload")
	tempDir := filepath.Join(dir, "tmp")

	writer, err := chunkwriter.New(uploadDir)
	if err != nil {
		t.Fatalf("chunkwriter.New: %v", err)
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		t.Fatalf("MkdirAll tempDir: %v", err)
	}

	s := store.NewMemory()
	j := New(Config{
		Store:            s,
		Writer:           writer,
		TempDir:          tempDir,
		Interval:         time.Hour,
		SessionRetention: time.Hour,
		ScratchRetention: time.Hour,
		Logger:           observability.NewLoggerWithWriter(bytes.NewBuffer(nil), "error"),
		Metrics:          testMetrics,
	})
	return j, s, writer, tempDir
}

func TestSweepSessionsReapsExpiredUploadingSession(t *testing.T) {
	j, s, writer, _ := newTestJanitor(t)
	ctx := context.Background()

	expired := domain.UploadSession{
		ID: "expired", Filename: "f.bin", TotalSize: 16, TotalChunks: 1,
		Status: domain.StatusUploading, CreatedAt: time.Now().Add(-2 * time.Hour), UpdatedAt: time.Now().Add(-2 * time.Hour),
	}
	if _, err := s.PutSessionIfAbsent(ctx, expired, []domain.ChunkRecord{{UploadID: "expired", ChunkIndex: 0, Status: domain.ChunkPending}}); err != nil {
		t.Fatalf("PutSessionIfAbsent: %v", err)
	}
	if err := os.WriteFile(writer.TargetPath("expired"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write target file: %v", err)
	}

	j.Sweep(ctx)

	if _, err := s.GetSession(ctx, "expired"); err == nil {
		t.Fatal("expected expired session to be deleted")
	}
	if _, err := os.Stat(writer.TargetPath("expired")); !os.IsNotExist(err) {
		t.Fatalf("expected target file to be removed, stat err=%v", err)
	}
}

func TestSweepSessionsNeverTouchesCompletedOrProcessing(t *testing.T) {
	j, s, writer, _ := newTestJanitor(t)
	ctx := context.Background()

	for _, status := range []domain.SessionStatus{domain.StatusCompleted, domain.StatusProcessing} {
		id := string(status)
		session := domain.UploadSession{
			ID: id, Filename: "f.bin", TotalSize: 16, TotalChunks: 1,
			Status: status, CreatedAt: time.Now().Add(-2 * time.Hour), UpdatedAt: time.Now().Add(-2 * time.Hour),
		}
		if _, err := s.PutSessionIfAbsent(ctx, session, []domain.ChunkRecord{{UploadID: id, ChunkIndex: 0, Status: domain.ChunkReceived}}); err != nil {
			t.Fatalf("PutSessionIfAbsent(%s): %v", id, err)
		}
		if err := os.WriteFile(writer.TargetPath(id), []byte("data"), 0o644); err != nil {
			t.Fatalf("write target file(%s): %v", id, err)
		}
	}

	j.Sweep(ctx)

	for _, status := range []domain.SessionStatus{domain.StatusCompleted, domain.StatusProcessing} {
		id := string(status)
		if _, err := s.GetSession(ctx, id); err != nil {
			t.Fatalf("expected %s session to survive sweep, got err=%v", id, err)
		}
		if _, err := os.Stat(writer.TargetPath(id)); err != nil {
			t.Fatalf("expected %s target file to survive sweep, got err=%v", id, err)
		}
	}
}

func TestSweepScratchRemovesOnlyStaleFiles(t *testing.T) {
	j, _, _, tempDir := newTestJanitor(t)
	j.scratchRetention = 30 * time.Minute

	freshPath := filepath.Join(tempDir, "fresh.part")
	if err := os.WriteFile(freshPath, []byte("y"), 0o644); err != nil {
		t.Fatalf("write fresh file: %v", err)
	}

	stalePath := filepath.Join(tempDir, "stale.part")
	if err := os.WriteFile(stalePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	j.Sweep(context.Background())

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatalf("expected stale scratch file removed, stat err=%v", err)
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected fresh scratch file to survive sweep, stat err=%v", err)
	}
}
