// Package janitor runs the periodic sweep of expired sessions and stale
// scratch files (spec.md §4.6).
package janitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/auth-platform/file-upload/internal/chunkwriter"
	"github.com/auth-platform/file-upload/internal/domain"
	"github.com/auth-platform/file-upload/internal/observability"
	"github.com/auth-platform/file-upload/internal/store"
)

// Config configures a Janitor.
type Config struct {
	Store            store.Store
	Writer           *chunkwriter.Writer
	TempDir          string
	Interval         time.Duration
	SessionRetention time.Duration
	ScratchRetention time.Duration
	Logger           *observability.Logger
	Metrics          *observability.Metrics
}

// Janitor sweeps on a fixed interval, in the worker/ticker lifecycle shape
// of the rest of the service's background workers.
type Janitor struct {
	store            store.Store
	writer           *chunkwriter.Writer
	tempDir          string
	interval         time.Duration
	sessionRetention time.Duration
	scratchRetention time.Duration
	log              *observability.Logger
	metrics          *observability.Metrics

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.Mutex
}

// New creates a Janitor.
func New(cfg Config) *Janitor {
	return &Janitor{
		store:            cfg.Store,
		writer:           cfg.Writer,
		tempDir:          cfg.TempDir,
		interval:         cfg.Interval,
		sessionRetention: cfg.SessionRetention,
		scratchRetention: cfg.ScratchRetention,
		log:              cfg.Logger.WithComponent("janitor"),
		metrics:          cfg.Metrics,
	}
}

// Start begins the ticker loop in a background goroutine.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}
	j.ctx, j.cancel = context.WithCancel(context.Background())
	j.running = true

	j.wg.Add(1)
	go j.loop()
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	j.cancel()
	j.mu.Unlock()

	j.wg.Wait()
	return nil
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(j.ctx)
		}
	}
}

// Sweep runs both independent sweeps once. A failure in one does not abort
// the other.
func (j *Janitor) Sweep(ctx context.Context) {
	j.sweepSessions(ctx)
	j.sweepScratch(ctx)
}

// sweepSessions implements spec §4.6.1: deletes the target file then the
// session and chunk records for every expired UPLOADING/FAILED session.
// COMPLETED and PROCESSING sessions are never touched.
func (j *Janitor) sweepSessions(ctx context.Context) {
	j.metrics.RecordJanitorSweep("sessions")

	cutoff := time.Now().UTC().Add(-j.sessionRetention)
	sessions, err := j.store.ListSessionsWhere(ctx, []domain.SessionStatus{domain.StatusUploading, domain.StatusFailed}, cutoff)
	if err != nil {
		j.log.Error("failed to list expired sessions", err)
		return
	}

	for _, s := range sessions {
		if err := j.writer.Remove(s.ID); err != nil {
			j.log.WithField("upload_id", s.ID).Error("failed to delete target file", err)
			continue
		}
		if err := j.store.DeleteSession(ctx, s.ID); err != nil {
			j.log.WithField("upload_id", s.ID).Error("failed to delete session record", err)
			continue
		}
		j.metrics.RecordJanitorReap("session")
	}
}

// sweepScratch implements spec §4.6.2: deletes scratch files older than the
// scratch retention horizon.
func (j *Janitor) sweepScratch(ctx context.Context) {
	j.metrics.RecordJanitorSweep("scratch")

	entries, err := os.ReadDir(j.tempDir)
	if err != nil {
		j.log.Error("failed to list scratch directory", err)
		return
	}

	cutoff := time.Now().Add(-j.scratchRetention)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.tempDir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.log.WithField("path", path).Error("failed to delete scratch file", err)
			continue
		}
		j.metrics.RecordJanitorReap("scratch_file")
	}
}
