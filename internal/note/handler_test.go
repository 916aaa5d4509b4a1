package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notebridge/internal/ledger"
	"notebridge/internal/note/repository"
	"notebridge/internal/note/service"
	"notebridge/internal/notebook"
	"notebridge/middleware"
	"notebridge/socket"
	"notebridge/stream"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*NoteHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.NewSyncService(
		repository.NewNoteRepository(db),
		notebook.NewRepository(db),
		ledger.NewLedger(db),
		socket.NewHub(db),
		stream.NewHub(),
	)
	return NewNoteHandler(svc), mock
}

func asUser(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
	return r.WithContext(ctx)
}

func TestUpdateNoteRejectsEmptyBody(t *testing.T) {
	h, mock := newTestHandler(t)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/note/update?noteId=n1", strings.NewReader(`{}`)), "alice")
	rec := httptest.NewRecorder()
	h.UpdateNote(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "a rejected request must not touch the store")
}

func TestUpdateNoteNotFoundMapsTo404(t *testing.T) {
	h, mock := newTestHandler(t)

	mock.ExpectQuery(`SELECT (.+) FROM notes WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/note/update?noteId=ghost", strings.NewReader(`{"content":"x"}`)), "alice")
	rec := httptest.NewRecorder()
	h.UpdateNote(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateNoteUnauthorizedMapsTo403(t *testing.T) {
	h, mock := newTestHandler(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "notebook_id", "title", "content", "created_by", "last_writer", "created_at", "updated_at"}).
		AddRow("n1", "nb1", "Plans", "original", "alice", "alice", now, now)
	mock.ExpectQuery(`SELECT (.+) FROM notes WHERE id = \$1`).
		WithArgs("n1").
		WillReturnRows(rows)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/note/update?noteId=n1", strings.NewReader(`{"content":"hijack"}`)), "mallory")
	rec := httptest.NewRecorder()
	h.UpdateNote(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "rejection happens before any mutation")
}

func TestUpdateNoteReturnsMergedRecord(t *testing.T) {
	h, mock := newTestHandler(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "notebook_id", "title", "content", "created_by", "last_writer", "created_at", "updated_at"}).
		AddRow("n1", "nb1", "Plans", "original", "alice", "alice", now, now)
	mock.ExpectQuery(`SELECT (.+) FROM notes WHERE id = \$1`).
		WithArgs("n1").
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE notes SET`).
		WithArgs("Plans", "rewritten", "alice", sqlmock.AnyArg(), "n1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO contributions`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/note/update?noteId=n1", strings.NewReader(`{"content":"rewritten"}`)), "alice")
	rec := httptest.NewRecorder()
	h.UpdateNote(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Plans"`, "merged record keeps the untouched title")
	assert.Contains(t, rec.Body.String(), `"content":"rewritten"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
