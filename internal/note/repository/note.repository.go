package repository

import (
	"database/sql"
	"time"

	"notebridge/internal/note/model"
	"notebridge/pkg/logger"
)

type NoteRepository struct {
	DB *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{DB: db}
}

func (r *NoteRepository) Get(noteID string) (*model.Note, error) {
	var n model.Note
	err := r.DB.QueryRow(
		`SELECT id, notebook_id, title, content, created_by, last_writer, created_at, updated_at FROM notes WHERE id = $1`,
		noteID,
	).Scan(&n.ID, &n.NotebookID, &n.Title, &n.Content, &n.CreatedBy, &n.LastWriter, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to load note %s: %v", noteID, err)
		}
		return nil, err
	}
	return &n, nil
}

func (r *NoteRepository) Exists(noteID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(`SELECT EXISTS(SELECT 1 FROM notes WHERE id = $1)`, noteID).Scan(&exists)
	if err != nil {
		logger.Sugar.Errorf("Failed to check note %s: %v", noteID, err)
	}
	return exists, err
}

func (r *NoteRepository) Create(n *model.Note) error {
	_, err := r.DB.Exec(
		`INSERT INTO notes (id, notebook_id, title, content, created_by, last_writer, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.NotebookID, n.Title, n.Content, n.CreatedBy, n.LastWriter, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create note: %v", err)
	}
	return err
}

// Commit replaces the note's title and content with the merged values.
// Whatever row state the store accepted last is the current state; there
// is no version check.
func (r *NoteRepository) Commit(noteID, title, content, lastWriter string, updatedAt time.Time) error {
	_, err := r.DB.Exec(
		`UPDATE notes SET title = $1, content = $2, last_writer = $3, updated_at = $4 WHERE id = $5`,
		title, content, lastWriter, updatedAt, noteID)
	if err != nil {
		logger.Sugar.Errorf("Failed to commit note %s: %v", noteID, err)
	}
	return err
}

func (r *NoteRepository) Delete(noteID string) error {
	_, err := r.DB.Exec(`DELETE FROM notes WHERE id = $1`, noteID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete note %s: %v", noteID, err)
	}
	return err
}

func (r *NoteRepository) ListByNotebook(notebookID string) ([]model.Note, error) {
	rows, err := r.DB.Query(
		`SELECT id, notebook_id, title, content, created_by, last_writer, created_at, updated_at
		 FROM notes WHERE notebook_id = $1 ORDER BY updated_at DESC, created_at DESC`,
		notebookID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list notes for notebook %s: %v", notebookID, err)
		return nil, err
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.NotebookID, &n.Title, &n.Content, &n.CreatedBy, &n.LastWriter, &n.CreatedAt, &n.UpdatedAt); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
