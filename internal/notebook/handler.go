package notebook

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"notebridge/internal/note/repository"
	"notebridge/middleware"
	"notebridge/pkg/ident"
	"notebridge/pkg/logger"
	"notebridge/stream"
)

type Handler struct {
	Repo  *Repository
	Notes *repository.NoteRepository
	Feed  *stream.Hub
}

func NewHandler(repo *Repository, notes *repository.NoteRepository, feed *stream.Hub) *Handler {
	return &Handler{Repo: repo, Notes: notes, Feed: feed}
}

type createNotebookRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsShared    bool   `json:"is_shared"`
}

func (h *Handler) CreateNotebook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	var req createNotebookRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Ignore error, default to empty

	if req.Title == "" {
		req.Title = "Untitled Notebook"
	}

	nb := &Notebook{
		ID:          ident.NewID(),
		OwnerID:     userID,
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
		IsShared:    req.IsShared,
	}
	if nb.ID == "" {
		http.Error(w, "Failed to generate notebook ID", http.StatusInternalServerError)
		return
	}
	if err := h.Repo.Create(nb); err != nil {
		logger.Sugar.Errorf("Handler: Failed to create notebook: %v", err)
		http.Error(w, "Failed to create notebook", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(nb)
}

func (h *Handler) GetNotebooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	notebooks, err := h.Repo.ListByOwner(userID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching notebooks: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if notebooks == nil {
		notebooks = []Notebook{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notebooks)
}

func (h *Handler) GetNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	notebookID := r.URL.Query().Get("notebookId")
	if notebookID == "" {
		http.Error(w, "Missing notebookId parameter", http.StatusBadRequest)
		return
	}
	exists, err := h.Repo.Exists(notebookID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "Notebook not found", http.StatusNotFound)
		return
	}

	notes, err := h.Notes.ListByNotebook(notebookID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching notes for notebook %s: %v", notebookID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notes)
}

func (h *Handler) DeleteNotebook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	notebookID := r.URL.Query().Get("notebookId")
	if notebookID == "" {
		http.Error(w, "Missing notebookId parameter", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	nb, err := h.Repo.Get(notebookID)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Notebook not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if nb.OwnerID != userID {
		http.Error(w, "Unauthorized: only the owner can delete a notebook", http.StatusForbidden)
		return
	}

	if err := h.Repo.Delete(notebookID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete notebook %s: %v", notebookID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Notebook deleted successfully"))
}

// Events serves the long-lived notebook change stream: one UTF-8 JSON
// event per line, oldest first, for as long as the client keeps reading.
// There is no replay; a reconnecting client re-syncs from current
// notebook state via GetNotes.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	notebookID := r.URL.Query().Get("notebookId")
	if notebookID == "" {
		http.Error(w, "Missing notebookId parameter", http.StatusBadRequest)
		return
	}
	exists, err := h.Repo.Exists(notebookID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "Notebook not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.Feed.Subscribe(notebookID)
	defer h.Feed.Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		// Next suspends until an event arrives or the client goes away.
		ev, ok := sub.Next(r.Context())
		if !ok {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
		flusher.Flush()
	}
}
