package socket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayApplier stands in for the coordinator: it accepts every edit from
// users named "alice" and fans it straight back out, so the tests can
// observe pure hub delivery semantics.
type relayApplier struct {
	hub *Hub
}

func (a *relayApplier) ApplyLiveEdit(noteID, actorID string, edit EditPayload, origin *Client) error {
	if actorID != "alice" {
		return errors.New("unauthorized: only the note's creator can modify it")
	}
	frame := UpdateFrame{NoteID: noteID, Content: *edit.Content, UpdatedAt: time.Now().UTC()}
	if edit.Title != nil {
		frame.Title = *edit.Title
	}
	a.hub.BroadcastUpdate(frame, origin)
	return nil
}

// Helper function to read messages from a WebSocket connection with a timeout.
func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	var msg WSMessage
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read message from WebSocket")
	err = json.Unmarshal(p, &msg)
	require.NoError(t, err, "Failed to unmarshal WSMessage JSON")
	return msg
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg WSMessage) {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func joinNote(t *testing.T, conn *websocket.Conn, noteID string) {
	t.Helper()
	writeMessage(t, conn, WSMessage{Type: JoinType, NoteID: noteID})
	ack := readMessage(t, conn)
	require.Equal(t, JoinedType, ack.Type)
	require.Equal(t, noteID, ack.NoteID)
}

func newHubServer(t *testing.T) (*Hub, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	hub := NewHub(db)
	hub.SetApplier(&relayApplier{hub: hub})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The middleware normally resolves the user; tests pass it directly.
		userID := r.URL.Query().Get("user_id")
		ServeWs(hub, w, r, userID)
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return hub, mock, wsURL
}

func expectNoteExists(mock sqlmock.Sqlmock, noteID string, exists bool) {
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM notes WHERE id = \$1\)`).
		WithArgs(noteID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func dial(t *testing.T, wsURL, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?user_id="+userID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestJoinUnknownNoteIsNoOp(t *testing.T) {
	hub, mock, wsURL := newHubServer(t)
	expectNoteExists(mock, "ghost", false)
	expectNoteExists(mock, "real", true)

	conn := dial(t, wsURL, "alice")

	// Unknown note id: no error, no room, connection survives.
	writeMessage(t, conn, WSMessage{Type: JoinType, NoteID: "ghost"})
	// Malformed join: silently ignored.
	writeMessage(t, conn, WSMessage{Type: JoinType})

	// The next ack the connection sees is for the valid join, proving the
	// bad joins produced nothing.
	joinNote(t, conn, "real")

	assert.False(t, hub.RoomExists("ghost"), "no room may be created for an unknown note")
	assert.True(t, hub.RoomExists("real"))
}

func TestLiveEditSkipsOriginDirectReachesAll(t *testing.T) {
	hub, mock, wsURL := newHubServer(t)
	for i := 0; i < 3; i++ {
		expectNoteExists(mock, "n1", true)
	}

	origin := dial(t, wsURL, "alice")
	viewerA := dial(t, wsURL, "bob")
	viewerB := dial(t, wsURL, "carol")
	joinNote(t, origin, "n1")
	joinNote(t, viewerA, "n1")
	joinNote(t, viewerB, "n1")

	// Live edit from origin: A and B receive it, origin does not.
	payload, _ := json.Marshal(EditPayload{Content: strPtr("typed live")})
	writeMessage(t, origin, WSMessage{Type: EditType, NoteID: "n1", Payload: payload})

	for _, conn := range []*websocket.Conn{viewerA, viewerB} {
		msg := readMessage(t, conn)
		assert.Equal(t, UpdateType, msg.Type)
		var frame UpdateFrame
		require.NoError(t, json.Unmarshal(msg.Payload, &frame))
		assert.Equal(t, "typed live", frame.Content)
	}

	// Direct-path commit: everyone receives it, origin included. Since
	// frames arrive in order per connection, origin seeing this frame
	// first proves the live edit was never echoed to it.
	hub.BroadcastUpdate(UpdateFrame{NoteID: "n1", Content: "via api", UpdatedAt: time.Now().UTC()}, nil)

	for _, conn := range []*websocket.Conn{origin, viewerA, viewerB} {
		msg := readMessage(t, conn)
		assert.Equal(t, UpdateType, msg.Type)
		var frame UpdateFrame
		require.NoError(t, json.Unmarshal(msg.Payload, &frame))
		assert.Equal(t, "via api", frame.Content)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub, mock, wsURL := newHubServer(t)
	expectNoteExists(mock, "n1", true)
	expectNoteExists(mock, "n1", true)

	leaver := dial(t, wsURL, "alice")
	stayer := dial(t, wsURL, "bob")
	joinNote(t, leaver, "n1")
	joinNote(t, stayer, "n1")

	writeMessage(t, leaver, WSMessage{Type: LeaveType, NoteID: "n1"})

	// Leave is processed in frame order on the leaver's connection, but
	// give the hub a moment before broadcasting.
	require.Eventually(t, func() bool {
		return !hub.RoomExists("n1") || len(hubRoomSnapshot(hub, "n1")) == 1
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastUpdate(UpdateFrame{NoteID: "n1", Content: "after leave", UpdatedAt: time.Now().UTC()}, nil)

	msg := readMessage(t, stayer)
	assert.Equal(t, UpdateType, msg.Type)

	// The leaver's next frame is not the broadcast; its connection stays
	// silent until closed.
	leaver.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := leaver.ReadMessage()
	assert.Error(t, err, "a departed viewer must not receive room frames")
}

func TestUnauthorizedLiveEditGetsErrorFrame(t *testing.T) {
	_, mock, wsURL := newHubServer(t)
	expectNoteExists(mock, "n1", true)

	conn := dial(t, wsURL, "mallory")
	joinNote(t, conn, "n1")

	payload, _ := json.Marshal(EditPayload{Content: strPtr("hijack")})
	writeMessage(t, conn, WSMessage{Type: EditType, NoteID: "n1", Payload: payload})

	msg := readMessage(t, conn)
	assert.Equal(t, ErrorType, msg.Type)
	assert.Contains(t, string(msg.Payload), "unauthorized")
}

func TestDisconnectDiscardsEmptyRoom(t *testing.T) {
	hub, mock, wsURL := newHubServer(t)
	expectNoteExists(mock, "n1", true)

	conn := dial(t, wsURL, "alice")
	joinNote(t, conn, "n1")
	require.True(t, hub.RoomExists("n1"))

	conn.Close()
	assert.Eventually(t, func() bool {
		return !hub.RoomExists("n1")
	}, time.Second, 10*time.Millisecond, "an emptied room is discarded")
}

func hubRoomSnapshot(h *Hub, noteID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := make([]*Client, 0, len(h.rooms[noteID]))
	for c := range h.rooms[noteID] {
		members = append(members, c)
	}
	return members
}

func strPtr(s string) *string { return &s }
