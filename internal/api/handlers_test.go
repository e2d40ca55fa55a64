package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/auth-platform/file-upload/internal/chunkwriter"
	"github.com/auth-platform/file-upload/internal/coordinator"
	"github.com/auth-platform/file-upload/internal/health"
	"github.com/auth-platform/file-upload/internal/observability"
	"github.com/auth-platform/file-upload/internal/store"
)

var testMetrics = observability.NewMetrics("api_test")

func newTestHandler(t *testing.T) http.Handler {
	dir := t.TempDir()
	writer, err := chunkwriter.New(dir + "/upload")
	if err != nil {
		t.Fatalf("chunkwriter.New: %v", err)
	}
	coord, err := coordinator.New(coordinator.Config{
		Store:     store.NewMemory(),
		Writer:    writer,
		TempDir:   dir + "/tmp",
		ChunkSize: 16,
		Logger:    observability.NewLoggerWithWriter(bytes.NewBuffer(nil), "error"),
		Metrics:   testMetrics,
		Tracer:    observability.NewTracer(),
	})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	hc := health.NewHealthChecker("test")
	return New(coord, hc, observability.NewLoggerWithWriter(bytes.NewBuffer(nil), "error"))
}

func buildChunkRequest(t *testing.T, uploadID string, chunkIndex int, payload []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("uploadId", uploadID); err != nil {
		t.Fatalf("WriteField uploadId: %v", err)
	}
	if err := w.WriteField("chunkIndex", strconv.Itoa(chunkIndex)); err != nil {
		t.Fatalf("WriteField chunkIndex: %v", err)
	}
	part, err := w.CreateFormFile("chunk", "chunk.bin")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write chunk payload: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunk", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestInitChunkStatusEndToEnd(t *testing.T) {
	handler := newTestHandler(t)

	initBody, _ := json.Marshal(initRequest{UploadID: "upload-1", Filename: "file.bin", FileSize: 32})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/init", bytes.NewReader(initBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("init: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var initResp initResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &initResp); err != nil {
		t.Fatalf("decode init response: %v", err)
	}
	if len(initResp.UploadedChunks) != 0 {
		t.Fatalf("expected fresh init to report no uploaded chunks, got %v", initResp.UploadedChunks)
	}

	for i, payload := range [][]byte{bytes.Repeat([]byte("a"), 16), bytes.Repeat([]byte("b"), 16)} {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, buildChunkRequest(t, "upload-1", i, payload))
		if rec.Code != http.StatusOK {
			t.Fatalf("chunk %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/api/upload/upload-1/status", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var statusResp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &statusResp); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if statusResp.Upload.Status != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %s", statusResp.Upload.Status)
	}
}

func TestChunkEndpointRejectsUnknownUpload(t *testing.T) {
	handler := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, buildChunkRequest(t, "does-not-exist", 0, bytes.Repeat([]byte("a"), 16)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown upload, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInitEndpointRejectsMissingFields(t *testing.T) {
	handler := newTestHandler(t)

	body, _ := json.Marshal(initRequest{UploadID: "", Filename: "file.bin", FileSize: 32})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/init", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing uploadId, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusEndpointUnknownUpload(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/upload/missing/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
