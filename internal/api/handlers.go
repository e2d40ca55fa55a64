package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apierrors "github.com/auth-platform/file-upload/internal/api/errors"
	"github.com/auth-platform/file-upload/internal/domain"
)

// maxChunkUploadMemory bounds how much of a multipart request net/http's
// parser buffers in memory before spilling the chunk part to a temp file;
// the Coordinator still spools it to its own scratch file afterward.
const maxChunkUploadMemory = 1 << 20 // 1 MiB

type initRequest struct {
	UploadID string `json:"uploadId"`
	Filename string `json:"filename"`
	FileSize int64  `json:"fileSize"`
}

type initResponse struct {
	UploadID       string               `json:"uploadId"`
	UploadedChunks []int                `json:"uploadedChunks"`
	Status         domain.SessionStatus `json:"status"`
}

func (h *Handler) initHandler(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteError(w, apierrors.ErrValidation, "malformed JSON body", r.URL.Path, correlationID(r.Context()))
		return
	}

	result, err := h.coordinator.Init(r.Context(), req.UploadID, req.Filename, req.FileSize)
	if err != nil {
		apierrors.WriteDomainError(w, err, r.URL.Path, correlationID(r.Context()))
		return
	}

	writeJSON(w, http.StatusOK, initResponse{
		UploadID:       result.ID,
		UploadedChunks: result.UploadedChunks,
		Status:         result.Status,
	})
}

type chunkResponse struct {
	Success        bool   `json:"success"`
	IsComplete     bool   `json:"isComplete,omitempty"`
	ReceivedChunks int    `json:"receivedChunks,omitempty"`
	TotalChunks    int    `json:"totalChunks,omitempty"`
	Message        string `json:"message,omitempty"`
}

func (h *Handler) chunkHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChunkUploadMemory); err != nil {
		apierrors.WriteError(w, apierrors.ErrValidation, "malformed multipart form", r.URL.Path, correlationID(r.Context()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploadID := r.FormValue("uploadId")
	chunkIndexStr := r.FormValue("chunkIndex")
	if uploadID == "" || chunkIndexStr == "" {
		apierrors.WriteError(w, apierrors.ErrValidation, "uploadId and chunkIndex are required", r.URL.Path, correlationID(r.Context()))
		return
	}
	chunkIndex, err := strconv.Atoi(chunkIndexStr)
	if err != nil || chunkIndex < 0 {
		apierrors.WriteError(w, apierrors.ErrValidation, "chunkIndex must be a non-negative integer", r.URL.Path, correlationID(r.Context()))
		return
	}

	file, _, err := r.FormFile("chunk")
	if err != nil {
		apierrors.WriteError(w, apierrors.ErrValidation, "chunk part is required", r.URL.Path, correlationID(r.Context()))
		return
	}
	defer file.Close()

	result, err := h.coordinator.ReceiveChunk(r.Context(), uploadID, chunkIndex, file)
	if err != nil {
		apierrors.WriteDomainError(w, err, r.URL.Path, correlationID(r.Context()))
		return
	}

	if result.AlreadyDone {
		writeJSON(w, http.StatusOK, chunkResponse{Success: true, Message: "Chunk already uploaded"})
		return
	}

	writeJSON(w, http.StatusOK, chunkResponse{
		Success:        true,
		IsComplete:     result.IsComplete,
		ReceivedChunks: result.Received,
		TotalChunks:    result.TotalChunks,
	})
}

type statusResponse struct {
	Upload domain.UploadSession `json:"upload"`
	Chunks []domain.ChunkRecord `json:"chunks"`
}

func (h *Handler) statusHandler(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]

	result, err := h.coordinator.GetStatus(r.Context(), uploadID)
	if err != nil {
		apierrors.WriteDomainError(w, err, r.URL.Path, correlationID(r.Context()))
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Upload: result.Session, Chunks: result.Chunks})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
