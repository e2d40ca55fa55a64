// Package domain holds the core types shared across the upload service.
package domain

import "time"

// SessionStatus is the lifecycle state of an UploadSession.
type SessionStatus string

const (
	StatusUploading  SessionStatus = "UPLOADING"
	StatusProcessing SessionStatus = "PROCESSING"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusFailed     SessionStatus = "FAILED"
)

// ChunkStatus is the receipt state of one ChunkRecord.
type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "PENDING"
	ChunkReceived ChunkStatus = "RECEIVED"
)

// UploadSession is the durable record of one logical upload, identified by
// a client-supplied id. See invariants I1-I6.
type UploadSession struct {
	ID          string        `json:"id" db:"id"`
	Filename    string        `json:"filename" db:"filename"`
	TotalSize   int64         `json:"totalSize" db:"total_size"`
	TotalChunks int           `json:"-" db:"total_chunks"`
	Status      SessionStatus `json:"status" db:"status"`
	FinalHash   *string       `json:"finalHash,omitempty" db:"final_hash"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time     `json:"updatedAt" db:"updated_at"`
}

// ChunkRecord tracks the receipt of one (upload_id, chunk_index) pair.
type ChunkRecord struct {
	UploadID   string      `json:"-" db:"upload_id"`
	ChunkIndex int         `json:"chunkIndex" db:"chunk_index"`
	Status     ChunkStatus `json:"status" db:"status"`
	ReceivedAt *time.Time  `json:"receivedAt,omitempty" db:"received_at"`
}

// TotalChunksFor computes ceil(totalSize / chunkSize).
func TotalChunksFor(totalSize, chunkSize int64) int {
	n := totalSize / chunkSize
	if totalSize%chunkSize != 0 {
		n++
	}
	return int(n)
}

// ChunkByteRange returns the [start, end) byte range a chunk index covers,
// per I5: the last chunk may be shorter than chunkSize.
func ChunkByteRange(index int, totalSize, chunkSize int64) (start, end int64) {
	start = int64(index) * chunkSize
	end = start + chunkSize
	if end > totalSize {
		end = totalSize
	}
	return start, end
}

// UploadedIndices returns the indices whose ChunkRecord is RECEIVED, sorted.
func UploadedIndices(chunks []ChunkRecord) []int {
	indices := make([]int, 0, len(chunks))
	for _, c := range chunks {
		if c.Status == ChunkReceived {
			indices = append(indices, c.ChunkIndex)
		}
	}
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j-1] > indices[j]; j-- {
			indices[j-1], indices[j] = indices[j], indices[j-1]
		}
	}
	return indices
}
