package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/auth-platform/file-upload/internal/domain"
)

// uniqueViolation is Postgres's SQLSTATE for a unique-key conflict.
const uniqueViolation = "23505"

// Postgres implements Store on top of PostgreSQL via sqlx + lib/pq, in the
// query/scan idiom of the teacher's repository layer.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an already-opened *sqlx.DB. Schema is expected to
// already exist (sessions, chunks tables per Schema).
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema is the DDL this store expects, exposed for migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	filename     TEXT NOT NULL,
	total_size   BIGINT NOT NULL,
	total_chunks INTEGER NOT NULL,
	status       TEXT NOT NULL,
	final_hash   TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_status_created ON sessions (status, created_at);

CREATE TABLE IF NOT EXISTS chunks (
	upload_id   TEXT NOT NULL REFERENCES sessions(id),
	chunk_index INTEGER NOT NULL,
	status      TEXT NOT NULL,
	received_at TIMESTAMPTZ,
	PRIMARY KEY (upload_id, chunk_index)
);
`

type sessionRow struct {
	ID          string         `db:"id"`
	Filename    string         `db:"filename"`
	TotalSize   int64          `db:"total_size"`
	TotalChunks int            `db:"total_chunks"`
	Status      string         `db:"status"`
	FinalHash   sql.NullString `db:"final_hash"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r sessionRow) toDomain() domain.UploadSession {
	s := domain.UploadSession{
		ID:          r.ID,
		Filename:    r.Filename,
		TotalSize:   r.TotalSize,
		TotalChunks: r.TotalChunks,
		Status:      domain.SessionStatus(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.FinalHash.Valid {
		h := r.FinalHash.String
		s.FinalHash = &h
	}
	return s
}

type chunkRow struct {
	UploadID   string       `db:"upload_id"`
	ChunkIndex int          `db:"chunk_index"`
	Status     string       `db:"status"`
	ReceivedAt sql.NullTime `db:"received_at"`
}

func (r chunkRow) toDomain() domain.ChunkRecord {
	c := domain.ChunkRecord{
		UploadID:   r.UploadID,
		ChunkIndex: r.ChunkIndex,
		Status:     domain.ChunkStatus(r.Status),
	}
	if r.ReceivedAt.Valid {
		t := r.ReceivedAt.Time
		c.ReceivedAt = &t
	}
	return c
}

func (p *Postgres) PutSessionIfAbsent(ctx context.Context, session domain.UploadSession, chunks []domain.ChunkRecord) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, domain.NewDomainError(domain.ErrCodeStoreError, "begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, filename, total_size, total_chunks, status, final_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, $6)`,
		session.ID, session.Filename, session.TotalSize, session.TotalChunks, string(session.Status), session.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return false, nil
		}
		return false, domain.NewDomainError(domain.ErrCodeStoreError, "insert session", err)
	}

	for _, c := range chunks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (upload_id, chunk_index, status, received_at)
			VALUES ($1, $2, $3, NULL)`,
			c.UploadID, c.ChunkIndex, string(c.Status))
		if err != nil {
			return false, domain.NewDomainError(domain.ErrCodeStoreError, "insert chunk record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, domain.NewDomainError(domain.ErrCodeStoreError, "commit session creation", err)
	}
	return true, nil
}

func (p *Postgres) GetSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	var row sessionRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, filename, total_size, total_chunks, status, final_hash, created_at, updated_at
		FROM sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "upload session not found: "+id, nil)
	}
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeStoreError, "get session", err)
	}
	s := row.toDomain()
	return &s, nil
}

// UpdateSessionStatus is the relational equivalent of a compare-and-set:
// UPDATE ... WHERE id = $1 AND status = $2, with RowsAffected() as the
// linearizable swap result, per the teacher's Update/SoftDelete idiom.
func (p *Postgres) UpdateSessionStatus(ctx context.Context, id string, from, to domain.SessionStatus, patch StatusPatch) (bool, error) {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var result sql.Result
	var err error
	if patch.FinalHash != nil {
		result, err = p.db.ExecContext(ctx, `
			UPDATE sessions SET status = $1, final_hash = $2, updated_at = $3
			WHERE id = $4 AND status = $5`,
			string(to), *patch.FinalHash, updatedAt, id, string(from))
	} else {
		result, err = p.db.ExecContext(ctx, `
			UPDATE sessions SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4`,
			string(to), updatedAt, id, string(from))
	}
	if err != nil {
		return false, domain.NewDomainError(domain.ErrCodeStoreError, "update session status", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, domain.NewDomainError(domain.ErrCodeStoreError, "rows affected", err)
	}
	return rows > 0, nil
}

func (p *Postgres) SetChunkReceived(ctx context.Context, uploadID string, index int, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE chunks SET status = $1, received_at = $2
		WHERE upload_id = $3 AND chunk_index = $4`,
		string(domain.ChunkReceived), at, uploadID, index)
	if err != nil {
		return domain.NewDomainError(domain.ErrCodeStoreError, "set chunk received", err)
	}
	return nil
}

func (p *Postgres) ListChunks(ctx context.Context, uploadID string) ([]domain.ChunkRecord, error) {
	var rows []chunkRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT upload_id, chunk_index, status, received_at
		FROM chunks WHERE upload_id = $1 ORDER BY chunk_index`, uploadID)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeStoreError, "list chunks", err)
	}
	out := make([]domain.ChunkRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) CountReceived(ctx context.Context, uploadID string) (int, error) {
	var n int
	err := p.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM chunks WHERE upload_id = $1 AND status = $2`,
		uploadID, string(domain.ChunkReceived))
	if err != nil {
		return 0, domain.NewDomainError(domain.ErrCodeStoreError, "count received chunks", err)
	}
	return n, nil
}

func (p *Postgres) ListSessionsWhere(ctx context.Context, statuses []domain.SessionStatus, olderThan time.Time) ([]domain.UploadSession, error) {
	strStatuses := make([]string, len(statuses))
	for i, s := range statuses {
		strStatuses[i] = string(s)
	}

	var rows []sessionRow
	query := `
		SELECT id, filename, total_size, total_chunks, status, final_hash, created_at, updated_at
		FROM sessions WHERE status = ANY($1) AND created_at < $2`
	err := p.db.SelectContext(ctx, &rows, query, pq.Array(strStatuses), olderThan)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeStoreError, "list sessions", err)
	}
	out := make([]domain.UploadSession, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) DeleteSession(ctx context.Context, id string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewDomainError(domain.ErrCodeStoreError, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE upload_id = $1`, id); err != nil {
		return domain.NewDomainError(domain.ErrCodeStoreError, "delete chunk records", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return domain.NewDomainError(domain.ErrCodeStoreError, "delete session", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.NewDomainError(domain.ErrCodeStoreError, "commit session deletion", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
