package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"notebridge/internal/ledger"
	"notebridge/internal/note/model"
	"notebridge/internal/note/service"
	"notebridge/middleware"
	"notebridge/pkg/logger"
)

type NoteHandler struct {
	Service *service.SyncService
}

func NewNoteHandler(service *service.SyncService) *NoteHandler {
	return &NoteHandler{Service: service}
}

// writeServiceError maps coordinator errors onto HTTP statuses.
// Authorization failures and unknown ids are rejected with zero side
// effects; anything else is a server fault.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoteNotFound), errors.Is(err, service.ErrNotebookNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	noteID := r.URL.Query().Get("noteId")
	if noteID == "" {
		http.Error(w, "Missing noteId parameter", http.StatusBadRequest)
		return
	}

	note, err := h.Service.GetNote(noteID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(note)
}

// UpdateNote accepts a partial {title?, content?} body and returns the
// merged record after the commit.
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	noteID := r.URL.Query().Get("noteId")
	if noteID == "" {
		http.Error(w, "Missing noteId parameter", http.StatusBadRequest)
		return
	}

	var req model.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == nil && req.Content == nil {
		http.Error(w, "Nothing to update: provide title or content", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	note, err := h.Service.UpdateNote(noteID, userID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to update note %s: %v", noteID, err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(note)
}

func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NotebookID == "" {
		http.Error(w, "Invalid request body: notebook_id is required", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	note, err := h.Service.CreateNote(userID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create note: %v", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.CreateNoteResponse{NoteID: note.ID})
}

func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	noteID := r.URL.Query().Get("noteId")
	if noteID == "" {
		http.Error(w, "Missing noteId parameter", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	if err := h.Service.DeleteNote(noteID, userID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete note %s: %v", noteID, err)
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Note deleted successfully"))
}

func (h *NoteHandler) AppendTranscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.TranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NoteID == "" || req.Transcript == "" {
		http.Error(w, "Invalid request body: note_id and transcript are required", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	note, err := h.Service.AppendTranscript(userID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to append transcript to note %s: %v", req.NoteID, err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.TranscriptResponse{Status: "ok", NewContent: note.Content})
}

// GetContributions returns the audit history, newest first, scoped by
// noteId or notebookId when given.
func (h *NoteHandler) GetContributions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := ledger.Filter{
		NoteID:     r.URL.Query().Get("noteId"),
		NotebookID: r.URL.Query().Get("notebookId"),
	}

	records, err := h.Service.ListContributions(filter)
	if err != nil {
		logger.Sugar.Errorf("Error fetching contributions: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []ledger.Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
