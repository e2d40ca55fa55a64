package coordinator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/auth-platform/file-upload/internal/chunkwriter"
	"github.com/auth-platform/file-upload/internal/domain"
	"github.com/auth-platform/file-upload/internal/observability"
	"github.com/auth-platform/file-upload/internal/store"
)

// testMetrics is shared across every test in this package: promauto
// registers into the global Prometheus registry, so constructing a fresh
// Metrics per test would panic on the second duplicate registration.
var testMetrics = observability.NewMetrics("coordinator_test")

func newTestCoordinator() *Coordinator {
	dir, err := os.MkdirTemp("", "coordinator-test-*")
	if err != nil {
		panic(err)
	}
	writer, err := chunkwriter.New(dir + "/upload")
	if err != nil {
		panic(err)
	}
	c, err := New(Config{
		Store:     store.NewMemory(),
		Writer:    writer,
		TempDir:   dir + "/tmp",
		ChunkSize: 16,
		Logger:    observability.NewLoggerWithWriter(bytes.NewBuffer(nil), "error"),
		Metrics:   testMetrics,
		Tracer:    observability.NewTracer(),
	})
	if err != nil {
		panic(err)
	}
	return c
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TestFinalHashMatchesConcatenationOrder covers the concatenation-order
// digest property: regardless of the order chunks arrive in, the final hash
// must equal sha256 of the chunks concatenated by index.
func TestFinalHashMatchesConcatenationOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := newTestCoordinator()
		ctx := context.Background()

		chunkSize := int64(16)
		numChunks := rapid.IntRange(1, 6).Draw(t, "numChunks")

		chunks := make([][]byte, numChunks)
		var want bytes.Buffer
		for i := 0; i < numChunks; i++ {
			size := chunkSize
			if i == numChunks-1 {
				size = int64(rapid.IntRange(1, int(chunkSize)).Draw(t, "lastSize"))
			}
			chunks[i] = rapid.SliceOfN(rapid.Byte(), int(size), int(size)).Draw(t, "chunk")
			want.Write(chunks[i])
		}
		totalSize := int64(want.Len())

		uploadID := "upload-" + rapid.StringMatching(`[a-f0-9]{8}`).Draw(t, "id")
		if _, err := c.Init(ctx, uploadID, "file.bin", totalSize); err != nil {
			t.Fatalf("Init: %v", err)
		}

		order := make([]int, numChunks)
		for i := range order {
			order[i] = i
		}
		for i := len(order) - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(t, "swap")
			order[i], order[j] = order[j], order[i]
		}

		var result *ReceiveResult
		for _, idx := range order {
			r, err := c.ReceiveChunk(ctx, uploadID, idx, bytes.NewReader(chunks[idx]))
			if err != nil {
				t.Fatalf("ReceiveChunk(%d): %v", idx, err)
			}
			result = r
		}

		if !result.IsComplete {
			t.Fatal("expected upload to be complete after all chunks received")
		}

		status, err := c.GetStatus(ctx, uploadID)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if status.Session.Status != domain.StatusCompleted {
			t.Fatalf("expected COMPLETED, got %s", status.Session.Status)
		}
		if status.Session.FinalHash == nil || *status.Session.FinalHash != sha256Hex(want.Bytes()) {
			t.Fatalf("final hash mismatch: got %v want %s", status.Session.FinalHash, sha256Hex(want.Bytes()))
		}
	})
}

// TestDuplicateChunkIsIdempotent covers resending an already-RECEIVED chunk:
// it must be accepted without error and without changing the received count.
func TestDuplicateChunkIsIdempotent(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()

	uploadID := "upload-1"
	if _, err := c.Init(ctx, uploadID, "file.bin", 32); err != nil {
		t.Fatalf("Init: %v", err)
	}

	payload := bytes.Repeat([]byte("a"), 16)
	first, err := c.ReceiveChunk(ctx, uploadID, 0, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("first ReceiveChunk: %v", err)
	}

	second, err := c.ReceiveChunk(ctx, uploadID, 0, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("duplicate ReceiveChunk: %v", err)
	}

	if first.Received != second.Received {
		t.Fatalf("expected received count unchanged on duplicate: first=%d second=%d", first.Received, second.Received)
	}
}

// TestConcurrentFinalizationExactlyOnce fires TryFinalize from many
// goroutines once a session is fully uploaded and already finalized by
// ReceiveChunk; none of them may transition the session a second time.
func TestConcurrentFinalizationExactlyOnce(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()

	uploadID := "upload-1"
	if _, err := c.Init(ctx, uploadID, "file.bin", 16); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := c.ReceiveChunk(ctx, uploadID, 0, bytes.NewReader(bytes.Repeat([]byte("x"), 16))); err != nil {
		t.Fatalf("ReceiveChunk: %v", err)
	}

	// The inline finalize from ReceiveChunk has already completed the
	// session; racing TryFinalize again must report no further swap.
	const racers = 8
	var wg sync.WaitGroup
	swaps := make([]bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			swapped, _ := c.TryFinalize(ctx, uploadID)
			swaps[i] = swapped
		}(i)
	}
	wg.Wait()

	for _, s := range swaps {
		if s {
			t.Fatal("expected no racer to win a second finalization of an already-COMPLETED session")
		}
	}
}

// TestInitIsResumable covers re-initializing an existing session: it must
// report the session's real progress rather than resetting it.
func TestInitIsResumable(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()

	uploadID := "upload-1"
	if _, err := c.Init(ctx, uploadID, "file.bin", 32); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if _, err := c.ReceiveChunk(ctx, uploadID, 0, bytes.NewReader(bytes.Repeat([]byte("a"), 16))); err != nil {
		t.Fatalf("ReceiveChunk: %v", err)
	}

	result, err := c.Init(ctx, uploadID, "file.bin", 32)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if len(result.UploadedChunks) != 1 || result.UploadedChunks[0] != 0 {
		t.Fatalf("expected resumed Init to report chunk 0 already uploaded, got %v", result.UploadedChunks)
	}
}

// TestReceiveChunkRejectsOutOfRangeIndex ensures a chunk index beyond
// total_chunks is rejected as a validation error, not silently accepted.
func TestReceiveChunkRejectsOutOfRangeIndex(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()

	uploadID := "upload-1"
	if _, err := c.Init(ctx, uploadID, "file.bin", 16); err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, err := c.ReceiveChunk(ctx, uploadID, 5, bytes.NewReader(make([]byte, 16)))
	if err == nil {
		t.Fatal("expected out-of-range chunk index to be rejected")
	}
	if domain.Code(err) != domain.ErrCodeValidation {
		t.Fatalf("expected ErrCodeValidation, got %v", domain.Code(err))
	}
}

// TestReceiveChunkAfterCompletionIsIdempotent covers resubmitting a chunk
// once the session has already finalized: it must be a no-op, not an error.
func TestReceiveChunkAfterCompletionIsIdempotent(t *testing.T) {
	c := newTestCoordinator()
	ctx := context.Background()

	uploadID := "upload-1"
	if _, err := c.Init(ctx, uploadID, "file.bin", 16); err != nil {
		t.Fatalf("Init: %v", err)
	}
	payload := bytes.Repeat([]byte("x"), 16)
	if _, err := c.ReceiveChunk(ctx, uploadID, 0, bytes.NewReader(payload)); err != nil {
		t.Fatalf("ReceiveChunk: %v", err)
	}

	result, err := c.ReceiveChunk(ctx, uploadID, 0, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post-completion ReceiveChunk: %v", err)
	}
	if !result.AlreadyDone {
		t.Fatal("expected AlreadyDone for a chunk resent after completion")
	}
}
