package router

import (
	"database/sql"
	"net/http"

	"notebridge/internal/ledger"
	noteHandler "notebridge/internal/note"
	"notebridge/internal/note/repository"
	"notebridge/internal/note/service"
	"notebridge/internal/notebook"
	"notebridge/middleware"
	"notebridge/socket"
	"notebridge/stream"
)

func Setup(db *sql.DB, rooms *socket.Hub, feed *stream.Hub) http.Handler {
	mux := http.NewServeMux()

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(middleware.UserIDKey).(string)
		socket.ServeWs(rooms, w, r, userID)
	})
	mux.Handle("/ws", middleware.AuthMiddleware(wsHandler))

	// REST API
	noteRepo := repository.NewNoteRepository(db)
	notebookRepo := notebook.NewRepository(db)
	led := ledger.NewLedger(db)
	syncService := service.NewSyncService(noteRepo, notebookRepo, led, rooms, feed)
	rooms.SetApplier(syncService)

	notes := noteHandler.NewNoteHandler(syncService)
	notebooks := notebook.NewHandler(notebookRepo, noteRepo, feed)
	auth := middleware.AuthMiddleware

	mux.Handle("/api/note", auth(http.HandlerFunc(notes.GetNote)))
	mux.Handle("/api/note/create", auth(http.HandlerFunc(notes.CreateNote)))
	mux.Handle("/api/note/update", auth(http.HandlerFunc(notes.UpdateNote)))
	mux.Handle("/api/note/delete", auth(http.HandlerFunc(notes.DeleteNote)))
	mux.Handle("/api/transcript", auth(http.HandlerFunc(notes.AppendTranscript)))
	mux.Handle("/api/contributions", auth(http.HandlerFunc(notes.GetContributions)))

	mux.Handle("/api/notebooks", auth(http.HandlerFunc(notebooks.GetNotebooks)))
	mux.Handle("/api/notebook/create", auth(http.HandlerFunc(notebooks.CreateNotebook)))
	mux.Handle("/api/notebook/delete", auth(http.HandlerFunc(notebooks.DeleteNotebook)))
	mux.Handle("/api/notebook/notes", auth(http.HandlerFunc(notebooks.GetNotes)))
	mux.Handle("/api/notebook/events", auth(http.HandlerFunc(notebooks.Events)))

	return middleware.CORSMiddleware(mux)
}
