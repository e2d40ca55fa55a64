// Package coordinator implements the Session Coordinator: the core
// algorithm orchestrating init, per-chunk admission and write, completion
// detection, and exactly-once finalization.
package coordinator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/auth-platform/file-upload/internal/chunkwriter"
	"github.com/auth-platform/file-upload/internal/digest"
	"github.com/auth-platform/file-upload/internal/domain"
	"github.com/auth-platform/file-upload/internal/observability"
	"github.com/auth-platform/file-upload/internal/peek"
	"github.com/auth-platform/file-upload/internal/security"
	"github.com/auth-platform/file-upload/internal/store"
)

// Archiver is the optional best-effort off-site copy hook fired after a
// session reaches COMPLETED. A nil Archiver disables archival entirely.
type Archiver interface {
	Archive(ctx context.Context, uploadID, targetPath string) error
}

// InitResult is the response shape of Init.
type InitResult struct {
	ID             string
	Status         domain.SessionStatus
	UploadedChunks []int
}

// ReceiveResult is the response shape of ReceiveChunk.
type ReceiveResult struct {
	Received    int
	TotalChunks int
	IsComplete  bool
	AlreadyDone bool // true if the session was already past UPLOADING
}

// StatusResult is the response shape of GetStatus.
type StatusResult struct {
	Session domain.UploadSession
	Chunks  []domain.ChunkRecord
}

// Coordinator is the only writer of session/chunk records and of target
// files. All safety derives from the Store's per-key CAS and non-overlapping
// chunk write ranges; no mutex here spans a blocking call.
type Coordinator struct {
	store     store.Store
	writer    *chunkwriter.Writer
	tempDir   string
	chunkSize int64
	archiver  Archiver // nil disables archival
	log       *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// Config configures a Coordinator.
type Config struct {
	Store     store.Store
	Writer    *chunkwriter.Writer
	TempDir   string
	ChunkSize int64
	Archiver  Archiver
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// New creates a Coordinator. TempDir is created if absent.
func New(cfg Config) (*Coordinator, error) {
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("coordinator: create temp dir: %w", err)
	}
	return &Coordinator{
		store:     cfg.Store,
		writer:    cfg.Writer,
		tempDir:   cfg.TempDir,
		chunkSize: cfg.ChunkSize,
		archiver:  cfg.Archiver,
		log:       cfg.Logger.WithComponent("coordinator"),
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}, nil
}

// Init implements spec §4.5.1. Idempotent: repeated calls with the same id
// return the same session and accurate progress; a mismatched
// filename/total_size on a pre-existing id is undefined behavior — the
// first value silently wins (spec.md §9, Open Question 1).
func (c *Coordinator) Init(ctx context.Context, id, filename string, totalSize int64) (*InitResult, error) {
	if id == "" || filename == "" || totalSize <= 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "id, filename and a positive totalSize are required", nil)
	}
	if !security.ValidateFilename(id) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "id contains unsafe characters", nil)
	}

	totalChunks := domain.TotalChunksFor(totalSize, c.chunkSize)
	now := time.Now().UTC()

	session := domain.UploadSession{
		ID:          id,
		Filename:    filename,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		Status:      domain.StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	chunks := make([]domain.ChunkRecord, totalChunks)
	for i := 0; i < totalChunks; i++ {
		chunks[i] = domain.ChunkRecord{UploadID: id, ChunkIndex: i, Status: domain.ChunkPending}
	}

	created, err := c.store.PutSessionIfAbsent(ctx, session, chunks)
	if err != nil {
		c.metrics.RecordSession("rejected")
		return nil, err
	}

	if created {
		c.metrics.RecordSession("created")
		c.metrics.IncrementActiveSessions()
		return &InitResult{ID: id, Status: domain.StatusUploading, UploadedChunks: []int{}}, nil
	}

	// Collision: load and report the existing session's progress.
	existing, err := c.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	existingChunks, err := c.store.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordSession("resumed")
	return &InitResult{
		ID:             existing.ID,
		Status:         existing.Status,
		UploadedChunks: domain.UploadedIndices(existingChunks),
	}, nil
}

// ReceiveChunk implements spec §4.5.2.
func (c *Coordinator) ReceiveChunk(ctx context.Context, id string, chunkIndex int, payload io.Reader) (*ReceiveResult, error) {
	ctx, span := c.tracer.StartSpan(ctx, "coordinator.ReceiveChunk")
	defer span.End()

	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		c.metrics.RecordChunk("not_found")
		return nil, err
	}

	if session.Status != domain.StatusUploading {
		// Idempotent tail behavior: payload discarded, no error.
		io.Copy(io.Discard, payload)
		received, _ := c.store.CountReceived(ctx, id)
		c.metrics.RecordChunk("already_finalized")
		return &ReceiveResult{Received: received, TotalChunks: session.TotalChunks, IsComplete: true, AlreadyDone: true}, nil
	}

	if chunkIndex < 0 || chunkIndex >= session.TotalChunks {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, fmt.Sprintf("chunk index %d out of range [0,%d)", chunkIndex, session.TotalChunks), nil)
	}

	chunks, err := c.store.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	var record *domain.ChunkRecord
	for i := range chunks {
		if chunks[i].ChunkIndex == chunkIndex {
			record = &chunks[i]
			break
		}
	}
	if record == nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "chunk record not found", nil)
	}
	if record.Status == domain.ChunkReceived {
		// Fast idempotent path: client retry, no-op.
		io.Copy(io.Discard, payload)
		received, _ := c.store.CountReceived(ctx, id)
		c.metrics.RecordChunk("already_received")
		return &ReceiveResult{Received: received, TotalChunks: session.TotalChunks, IsComplete: received == session.TotalChunks}, nil
	}

	scratchPath := filepath.Join(c.tempDir, uuid.New().String()+".part")
	scratch, err := os.Create(scratchPath)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeWriteError, "create scratch file", err)
	}
	defer os.Remove(scratchPath)

	if _, err := io.Copy(scratch, payload); err != nil {
		scratch.Close()
		return nil, domain.NewDomainError(domain.ErrCodeWriteError, "spool chunk payload", err)
	}
	if err := scratch.Close(); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeWriteError, "close scratch file", err)
	}

	start, end := domain.ChunkByteRange(chunkIndex, session.TotalSize, c.chunkSize)
	expectedLen := end - start

	spooled, err := os.Open(scratchPath)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeWriteError, "reopen scratch file", err)
	}
	defer spooled.Close()

	writeStart := time.Now()
	writeErr := c.writer.WriteChunk(id, chunkIndex, c.chunkSize, expectedLen, spooled)
	c.metrics.ObserveChunkWrite(time.Since(writeStart).Seconds())
	if writeErr != nil {
		c.metrics.RecordChunk("write_error")
		return nil, writeErr
	}

	// I6: write strictly precedes marking RECEIVED.
	if err := c.store.SetChunkReceived(ctx, id, chunkIndex, time.Now().UTC()); err != nil {
		return nil, err
	}
	c.metrics.RecordChunk("received")

	received, err := c.store.CountReceived(ctx, id)
	if err != nil {
		return nil, err
	}

	isComplete := received == session.TotalChunks
	if isComplete {
		// The last arriving chunk's handler also performs finalization inline.
		if _, err := c.TryFinalize(ctx, id); err != nil {
			c.log.WithContext(ctx).Error("inline finalize failed", err)
		}
	}

	return &ReceiveResult{Received: received, TotalChunks: session.TotalChunks, IsComplete: isComplete}, nil
}

// TryFinalize implements spec §4.5.3, the exactly-once transition.
func (c *Coordinator) TryFinalize(ctx context.Context, id string) (bool, error) {
	ctx, span := c.tracer.StartSpan(ctx, "coordinator.TryFinalize")
	defer span.End()

	start := time.Now()

	swapped, err := c.store.UpdateSessionStatus(ctx, id, domain.StatusUploading, domain.StatusProcessing, store.StatusPatch{UpdatedAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}
	if !swapped {
		// Another worker already claimed finalization, or the session is
		// past UPLOADING for some other reason. Not an error.
		return false, nil
	}

	finalHash, finalizeErr := c.finalize(ctx, id)
	if finalizeErr != nil {
		c.metrics.RecordFinalization("failed", time.Since(start).Seconds())
		c.metrics.DecrementActiveSessions()
		if _, failErr := c.store.UpdateSessionStatus(ctx, id, domain.StatusProcessing, domain.StatusFailed, store.StatusPatch{UpdatedAt: time.Now().UTC()}); failErr != nil {
			c.log.WithContext(ctx).Error("failed to mark session FAILED after finalization error", failErr)
		}
		return false, domain.NewDomainError(domain.ErrCodeFinalizationErr, "finalization failed", finalizeErr)
	}

	done, err := c.store.UpdateSessionStatus(ctx, id, domain.StatusProcessing, domain.StatusCompleted, store.StatusPatch{
		FinalHash: &finalHash,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		c.metrics.RecordFinalization("failed", time.Since(start).Seconds())
		return false, err
	}

	c.metrics.RecordFinalization("completed", time.Since(start).Seconds())
	c.metrics.DecrementActiveSessions()

	if c.archiver != nil {
		go c.archiveBestEffort(id)
	}

	return done, nil
}

// finalize runs the Digest Engine then the Container Peeker, best-effort.
func (c *Coordinator) finalize(ctx context.Context, id string) (string, error) {
	f, err := c.writer.Open(id)
	if err != nil {
		return "", fmt.Errorf("open target file: %w", err)
	}
	_, digestSpan := c.tracer.StartSpan(ctx, "digest.Compute")
	hash, err := digest.Compute(f)
	digestSpan.End()
	f.Close()
	if err != nil {
		return "", fmt.Errorf("compute digest: %w", err)
	}

	session, err := c.store.GetSession(ctx, id)
	if err == nil && c.suggestsZip(session.Filename, id) {
		_, peekSpan := c.tracer.StartSpan(ctx, "peek.Entries")
		c.peekBestEffort(id)
		peekSpan.End()
	}

	return hash, nil
}

// suggestsZip reports whether the filename extension or the target file's
// magic bytes indicate a ZIP archive, per spec §4.4.
func (c *Coordinator) suggestsZip(filename, id string) bool {
	if filepath.Ext(filename) == ".zip" {
		return true
	}
	f, err := c.writer.Open(id)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 261)
	n, _ := f.Read(head)
	return peek.LooksLikeZip(head[:n])
}

func (c *Coordinator) peekBestEffort(id string) {
	entries, err := peek.Entries(c.writer.TargetPath(id))
	if err != nil {
		c.log.WithComponent("peek").Warn("container peek failed: " + err.Error())
		return
	}
	c.log.WithComponent("peek").WithField("entries", len(entries)).Info("peeked container")
}

func (c *Coordinator) archiveBestEffort(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := c.archiver.Archive(ctx, id, c.writer.TargetPath(id)); err != nil {
		c.metrics.RecordArchiveAttempt("failed")
		c.log.WithComponent("archive").Warn("archival upload failed: " + err.Error())
		return
	}
	c.metrics.RecordArchiveAttempt("succeeded")
}

// GetStatus implements spec §4.5.5. Read-only; never blocks the write path.
func (c *Coordinator) GetStatus(ctx context.Context, id string) (*StatusResult, error) {
	session, err := c.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	chunks, err := c.store.ListChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusResult{Session: *session, Chunks: chunks}, nil
}
