// Package store is the Metadata Store: the durable keyed record of every
// upload session and every chunk's receipt status. Any engine satisfying
// this narrow contract is acceptable; Postgres and an in-memory
// implementation are provided.
package store

import (
	"context"
	"time"

	"github.com/auth-platform/file-upload/internal/domain"
)

// Store is the contract the Session Coordinator and Janitor depend on.
// update_session_status is the sole concurrency primitive: it must be
// linearizable per session id.
type Store interface {
	// PutSessionIfAbsent creates session and its total_chunks PENDING chunk
	// records atomically. Returns (created=false, nil) on an id collision,
	// leaving both the session and its chunks untouched.
	PutSessionIfAbsent(ctx context.Context, session domain.UploadSession, chunks []domain.ChunkRecord) (created bool, err error)

	// GetSession loads a session by id. Returns domain.ErrNotFound if absent.
	GetSession(ctx context.Context, id string) (*domain.UploadSession, error)

	// UpdateSessionStatus is the compare-and-set primitive: it advances
	// status to `to` and applies patch only if the current status equals
	// `from`. swapped reports whether the CAS took effect.
	UpdateSessionStatus(ctx context.Context, id string, from, to domain.SessionStatus, patch StatusPatch) (swapped bool, err error)

	// SetChunkReceived idempotently marks a chunk RECEIVED.
	SetChunkReceived(ctx context.Context, uploadID string, index int, at time.Time) error

	// ListChunks returns all chunk records for a session.
	ListChunks(ctx context.Context, uploadID string) ([]domain.ChunkRecord, error)

	// CountReceived returns the number of RECEIVED chunks for a session.
	CountReceived(ctx context.Context, uploadID string) (int, error)

	// ListSessionsWhere returns sessions in one of statuses with
	// created_at older than olderThan, for the Janitor.
	ListSessionsWhere(ctx context.Context, statuses []domain.SessionStatus, olderThan time.Time) ([]domain.UploadSession, error)

	// DeleteSession removes a session and all its chunk records.
	DeleteSession(ctx context.Context, id string) error

	// Ping verifies connectivity, for the readiness checker.
	Ping(ctx context.Context) error
}

// StatusPatch is the set of fields update_session_status may also write
// atomically with the status swap.
type StatusPatch struct {
	FinalHash *string
	UpdatedAt time.Time
}
