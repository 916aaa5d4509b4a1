package model

import "time"

type Note struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebook_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedBy  string    `json:"created_by"`
	LastWriter string    `json:"last_writer"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CreateNoteRequest struct {
	NotebookID string `json:"notebook_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

type CreateNoteResponse struct {
	NoteID string `json:"note_id"`
}

// UpdateNoteRequest carries a partial update: nil fields keep their
// current stored values.
type UpdateNoteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type TranscriptRequest struct {
	NoteID     string `json:"note_id"`
	Speaker    string `json:"speaker"`
	Transcript string `json:"transcript"`
}

type TranscriptResponse struct {
	Status     string `json:"status"`
	NewContent string `json:"new_content"`
}
