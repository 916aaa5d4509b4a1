// Package ledger keeps the append-only audit history of actions taken
// against notes. Records are written after the primary note commit and a
// failed append never rolls that commit back; the history is for audit,
// not conflict resolution.
package ledger

import (
	"database/sql"
	"time"

	"notebridge/pkg/logger"
)

const (
	ActionEdit       = "edit"    // direct API update
	ActionLiveEdit   = "edit_ws" // live room edit
	ActionCreate     = "create"
	ActionTranscript = "transcript"
)

type Record struct {
	NoteID    string    `json:"note_id"`
	ActorID   string    `json:"actor"`
	Action    string    `json:"action_kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter scopes a listing to one note, one notebook, or (both empty)
// everything. NoteID wins when both are set.
type Filter struct {
	NoteID     string
	NotebookID string
}

type Ledger struct {
	DB *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{DB: db}
}

func (l *Ledger) Append(rec Record) error {
	_, err := l.DB.Exec(
		`INSERT INTO contributions (note_id, user_id, action, timestamp, detail) VALUES ($1, $2, $3, $4, $5)`,
		rec.NoteID, rec.ActorID, rec.Action, rec.Timestamp, rec.Detail)
	if err != nil {
		logger.Sugar.Errorf("Failed to append contribution for note %s: %v", rec.NoteID, err)
	}
	return err
}

func (l *Ledger) List(f Filter) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case f.NoteID != "":
		rows, err = l.DB.Query(
			`SELECT note_id, user_id, action, detail, timestamp FROM contributions
			 WHERE note_id = $1 ORDER BY timestamp DESC`, f.NoteID)
	case f.NotebookID != "":
		rows, err = l.DB.Query(
			`SELECT c.note_id, c.user_id, c.action, c.detail, c.timestamp FROM contributions c
			 JOIN notes n ON n.id = c.note_id
			 WHERE n.notebook_id = $1 ORDER BY c.timestamp DESC`, f.NotebookID)
	default:
		rows, err = l.DB.Query(
			`SELECT note_id, user_id, action, detail, timestamp FROM contributions ORDER BY timestamp DESC`)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to list contributions: %v", err)
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.NoteID, &rec.ActorID, &rec.Action, &rec.Detail, &rec.Timestamp); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
