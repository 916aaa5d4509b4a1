package service

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notebridge/internal/ledger"
	"notebridge/internal/note/model"
	"notebridge/internal/note/repository"
	"notebridge/internal/notebook"
	"notebridge/pkg/ident"
	"notebridge/pkg/logger"
	"notebridge/socket"
	"notebridge/stream"
)

var (
	ErrNoteNotFound     = errors.New("note not found")
	ErrNotebookNotFound = errors.New("notebook not found")
	ErrUnauthorized     = errors.New("unauthorized: only the note's creator can modify it")
)

// SyncService is the single apply path for note mutations. Every
// accepted edit, regardless of the channel it arrived on, goes through
// the same sequence: authorize, merge, commit, audit, fan out. The
// store's row is the only version of the truth; two racing edits
// resolve purely by commit order.
type SyncService struct {
	Repo      *repository.NoteRepository
	Notebooks *notebook.Repository
	Ledger    *ledger.Ledger
	Rooms     *socket.Hub
	Feed      *stream.Hub
}

func NewSyncService(repo *repository.NoteRepository, notebooks *notebook.Repository, led *ledger.Ledger, rooms *socket.Hub, feed *stream.Hub) *SyncService {
	return &SyncService{Repo: repo, Notebooks: notebooks, Ledger: led, Rooms: rooms, Feed: feed}
}

// applyEdit commits one accepted edit. The commit, the ledger append and
// the fan-out are independent writes: once the commit succeeds, a
// downstream failure is logged and swallowed, never retried and never
// surfaced, because the caller already owns a committed write.
func (s *SyncService) applyEdit(noteID, actorID string, req model.UpdateNoteRequest, action, detail string, origin *socket.Client) (*model.Note, error) {
	note, err := s.Repo.Get(noteID)
	if err == sql.ErrNoRows {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}
	if note.CreatedBy != actorID {
		return nil, ErrUnauthorized
	}

	// Partial-update merge: unspecified fields keep their stored values.
	if req.Title != nil {
		note.Title = *req.Title
	}
	if req.Content != nil {
		note.Content = *req.Content
	}
	note.LastWriter = actorID
	note.UpdatedAt = time.Now().UTC()

	if err := s.Repo.Commit(note.ID, note.Title, note.Content, actorID, note.UpdatedAt); err != nil {
		return nil, err
	}

	if err := s.Ledger.Append(ledger.Record{
		NoteID:    note.ID,
		ActorID:   actorID,
		Action:    action,
		Detail:    detail,
		Timestamp: note.UpdatedAt,
	}); err != nil {
		logger.Sugar.Errorf("Contribution append failed after commit of note %s: %v", note.ID, err)
	}

	s.Rooms.BroadcastUpdate(socket.UpdateFrame{
		NoteID:    note.ID,
		Title:     note.Title,
		Content:   note.Content,
		UpdatedAt: note.UpdatedAt,
	}, origin)

	s.Feed.Publish(note.NotebookID, stream.Event{
		Action:    stream.ActionNoteUpdated,
		NoteID:    note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Actor:     actorID,
		Timestamp: note.UpdatedAt,
	})

	return note, nil
}

// UpdateNote applies a partial update arriving through the REST path.
// The whole room receives the result, including the caller's own live
// connections, so every viewer converges on the committed state.
func (s *SyncService) UpdateNote(noteID, actorID string, req model.UpdateNoteRequest) (*model.Note, error) {
	return s.applyEdit(noteID, actorID, req, ledger.ActionEdit, "updated via api", nil)
}

// ApplyLiveEdit applies an edit arriving on the live room channel. The
// origin connection is skipped during fan-out since its editor already
// holds the change.
func (s *SyncService) ApplyLiveEdit(noteID, actorID string, edit socket.EditPayload, origin *socket.Client) error {
	_, err := s.applyEdit(noteID, actorID, model.UpdateNoteRequest{Title: edit.Title, Content: edit.Content},
		ledger.ActionLiveEdit, "live edit", origin)
	return err
}

// AppendTranscript tacks a spoken-note transcript line onto the note's
// content through the same apply path as any other edit.
func (s *SyncService) AppendTranscript(actorID string, req model.TranscriptRequest) (*model.Note, error) {
	note, err := s.Repo.Get(req.NoteID)
	if err == sql.ErrNoRows {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, err
	}

	speaker := req.Speaker
	if speaker == "" {
		speaker = "unknown"
	}
	content := note.Content + fmt.Sprintf("\n[%s @ %s]: %s", speaker, time.Now().UTC().Format(time.RFC3339), req.Transcript)

	return s.applyEdit(req.NoteID, actorID, model.UpdateNoteRequest{Content: &content},
		ledger.ActionTranscript, "speaker="+speaker, nil)
}

func (s *SyncService) CreateNote(actorID string, req model.CreateNoteRequest) (*model.Note, error) {
	exists, err := s.Notebooks.Exists(req.NotebookID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotebookNotFound
	}

	noteID := ident.NewID()
	if noteID == "" {
		return nil, errors.New("failed to generate note ID")
	}
	title := req.Title
	if title == "" {
		title = "Untitled"
	}

	now := time.Now().UTC()
	note := &model.Note{
		ID:         noteID,
		NotebookID: req.NotebookID,
		Title:      title,
		Content:    req.Content,
		CreatedBy:  actorID,
		LastWriter: actorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Repo.Create(note); err != nil {
		return nil, err
	}

	if err := s.Ledger.Append(ledger.Record{
		NoteID:    note.ID,
		ActorID:   actorID,
		Action:    ledger.ActionCreate,
		Detail:    "created note",
		Timestamp: now,
	}); err != nil {
		logger.Sugar.Errorf("Contribution append failed after create of note %s: %v", note.ID, err)
	}

	s.Feed.Publish(note.NotebookID, stream.Event{
		Action:    stream.ActionNoteAdded,
		NoteID:    note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Actor:     actorID,
		Timestamp: now,
	})

	return note, nil
}

func (s *SyncService) DeleteNote(noteID, actorID string) error {
	note, err := s.Repo.Get(noteID)
	if err == sql.ErrNoRows {
		return ErrNoteNotFound
	}
	if err != nil {
		return err
	}
	if note.CreatedBy != actorID {
		return ErrUnauthorized
	}

	if err := s.Repo.Delete(noteID); err != nil {
		return err
	}

	// Contribution rows for the note go with it (ON DELETE CASCADE), so
	// there is no ledger entry to write here.
	s.Rooms.CloseRoom(noteID)
	s.Feed.Publish(note.NotebookID, stream.Event{
		Action:    stream.ActionNoteDeleted,
		NoteID:    noteID,
		Actor:     actorID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *SyncService) GetNote(noteID string) (*model.Note, error) {
	note, err := s.Repo.Get(noteID)
	if err == sql.ErrNoRows {
		return nil, ErrNoteNotFound
	}
	return note, err
}

func (s *SyncService) ListContributions(f ledger.Filter) ([]ledger.Record, error) {
	return s.Ledger.List(f)
}
