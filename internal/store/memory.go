package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/auth-platform/file-upload/internal/domain"
)

// Memory is an in-memory Store implementation, substituting for Postgres in
// tests the same way the teacher substitutes mocks for its cache/storage
// clients.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]domain.UploadSession
	chunks   map[string]map[int]domain.ChunkRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]domain.UploadSession),
		chunks:   make(map[string]map[int]domain.ChunkRecord),
	}
}

func (m *Memory) PutSessionIfAbsent(ctx context.Context, session domain.UploadSession, chunks []domain.ChunkRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return false, nil
	}

	m.sessions[session.ID] = session
	byIndex := make(map[int]domain.ChunkRecord, len(chunks))
	for _, c := range chunks {
		byIndex[c.ChunkIndex] = c
	}
	m.chunks[session.ID] = byIndex
	return true, nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "upload session not found: "+id, nil)
	}
	cp := s
	return &cp, nil
}

func (m *Memory) UpdateSessionStatus(ctx context.Context, id string, from, to domain.SessionStatus, patch StatusPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, domain.NewDomainError(domain.ErrCodeNotFound, "upload session not found: "+id, nil)
	}
	if s.Status != from {
		return false, nil
	}

	s.Status = to
	if patch.FinalHash != nil {
		s.FinalHash = patch.FinalHash
	}
	if !patch.UpdatedAt.IsZero() {
		s.UpdatedAt = patch.UpdatedAt
	}
	m.sessions[id] = s
	return true, nil
}

func (m *Memory) SetChunkReceived(ctx context.Context, uploadID string, index int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIndex, ok := m.chunks[uploadID]
	if !ok {
		return domain.NewDomainError(domain.ErrCodeNotFound, "upload session not found: "+uploadID, nil)
	}
	rec, ok := byIndex[index]
	if !ok {
		return domain.NewDomainError(domain.ErrCodeNotFound, "chunk record not found", nil)
	}
	rec.Status = domain.ChunkReceived
	t := at
	rec.ReceivedAt = &t
	byIndex[index] = rec
	return nil
}

func (m *Memory) ListChunks(ctx context.Context, uploadID string) ([]domain.ChunkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIndex, ok := m.chunks[uploadID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "upload session not found: "+uploadID, nil)
	}
	out := make([]domain.ChunkRecord, 0, len(byIndex))
	for _, c := range byIndex {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *Memory) CountReceived(ctx context.Context, uploadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIndex, ok := m.chunks[uploadID]
	if !ok {
		return 0, domain.NewDomainError(domain.ErrCodeNotFound, "upload session not found: "+uploadID, nil)
	}
	n := 0
	for _, c := range byIndex {
		if c.Status == domain.ChunkReceived {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListSessionsWhere(ctx context.Context, statuses []domain.SessionStatus, olderThan time.Time) ([]domain.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[domain.SessionStatus]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}

	var out []domain.UploadSession
	for _, s := range m.sessions {
		if _, ok := want[s.Status]; !ok {
			continue
		}
		if s.CreatedAt.Before(olderThan) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	delete(m.chunks, id)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
