package notebook

import (
	"database/sql"
	"time"

	"notebridge/pkg/logger"
)

type Notebook struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	IsShared    bool      `json:"is_shared"`
}

type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) Create(nb *Notebook) error {
	_, err := r.DB.Exec(
		`INSERT INTO notebooks (id, owner_id, title, description, created_at, is_shared) VALUES ($1, $2, $3, $4, $5, $6)`,
		nb.ID, nb.OwnerID, nb.Title, nb.Description, nb.CreatedAt, nb.IsShared)
	if err != nil {
		logger.Sugar.Errorf("Failed to create notebook: %v", err)
	}
	return err
}

func (r *Repository) Get(notebookID string) (*Notebook, error) {
	var nb Notebook
	err := r.DB.QueryRow(
		`SELECT id, owner_id, title, description, created_at, is_shared FROM notebooks WHERE id = $1`,
		notebookID,
	).Scan(&nb.ID, &nb.OwnerID, &nb.Title, &nb.Description, &nb.CreatedAt, &nb.IsShared)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to load notebook %s: %v", notebookID, err)
		}
		return nil, err
	}
	return &nb, nil
}

func (r *Repository) Exists(notebookID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(`SELECT EXISTS(SELECT 1 FROM notebooks WHERE id = $1)`, notebookID).Scan(&exists)
	if err != nil {
		logger.Sugar.Errorf("Failed to check notebook %s: %v", notebookID, err)
	}
	return exists, err
}

func (r *Repository) ListByOwner(ownerID string) ([]Notebook, error) {
	rows, err := r.DB.Query(
		`SELECT id, owner_id, title, description, created_at, is_shared FROM notebooks
		 WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list notebooks for user %s: %v", ownerID, err)
		return nil, err
	}
	defer rows.Close()

	var notebooks []Notebook
	for rows.Next() {
		var nb Notebook
		if err := rows.Scan(&nb.ID, &nb.OwnerID, &nb.Title, &nb.Description, &nb.CreatedAt, &nb.IsShared); err != nil {
			continue
		}
		notebooks = append(notebooks, nb)
	}
	return notebooks, rows.Err()
}

// Delete removes the notebook; its notes and their contributions go with
// it via ON DELETE CASCADE.
func (r *Repository) Delete(notebookID string) error {
	_, err := r.DB.Exec(`DELETE FROM notebooks WHERE id = $1`, notebookID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete notebook %s: %v", notebookID, err)
	}
	return err
}
