package socket

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"notebridge/pkg/logger"
)

const (
	JoinType   = "JOIN"         // viewer opens a note
	LeaveType  = "LEAVE"        // viewer closes a note
	EditType   = "EDIT"         // live edit from a viewer
	JoinedType = "JOINED"       // ack to the joining connection
	UpdateType = "NOTE_UPDATED" // committed edit fanned out to the room
	ErrorType  = "ERROR"        // rejected frame, sent to the sender only
)

type WSMessage struct {
	Type    string          `json:"type"`
	NoteID  string          `json:"note_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EditPayload is the live-edit body. Nil fields keep their stored values,
// matching the REST partial-update semantics.
type EditPayload struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// UpdateFrame is what room members receive after an edit is committed.
type UpdateFrame struct {
	NoteID    string    `json:"note_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EditApplier funnels a live edit into the single apply path (persist,
// audit, fan out). origin is the connection the edit arrived on so the
// broadcast can skip echoing it.
type EditApplier interface {
	ApplyLiveEdit(noteID, actorID string, edit EditPayload, origin *Client) error
}

// Hub owns the per-note rooms of live viewers. Membership is only ever
// touched through Join/Leave/RemoveClient under the hub's lock; the raw
// map is never handed out.
type Hub struct {
	mu      sync.Mutex
	rooms   map[string]map[*Client]bool
	db      *sql.DB
	applier EditApplier
}

func NewHub(db *sql.DB) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]bool),
		db:    db,
	}
}

// SetApplier wires the coordinator in after construction. The service
// layer needs the hub to fan out, so the hub cannot take it up front.
func (h *Hub) SetApplier(a EditApplier) {
	h.applier = a
}

// Join registers the client as a viewer of the note. A join against an
// unknown note id is a silent no-op: no room is created and the
// connection stays up.
func (h *Hub) Join(noteID string, client *Client) {
	var exists bool
	err := h.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM notes WHERE id = $1)`, noteID).Scan(&exists)
	if err != nil {
		logger.Sugar.Errorf("Failed to check note %s on join: %v", noteID, err)
		return
	}
	if !exists {
		logger.Sugar.Infof("Ignoring join for unknown note %s", noteID)
		return
	}

	h.mu.Lock()
	if h.rooms[noteID] == nil {
		h.rooms[noteID] = make(map[*Client]bool)
	}
	h.rooms[noteID][client] = true
	h.mu.Unlock()

	ack, _ := json.Marshal(WSMessage{Type: JoinedType, NoteID: noteID})
	client.deliver(ack)
}

// Leave deregisters the client from the note's room. An empty room is
// discarded immediately.
func (h *Hub) Leave(noteID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[noteID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, noteID)
		}
	}
}

// RemoveClient drops a disconnected client from every room it joined and
// closes its send channel. Called once, from the client's readPump exit.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	for noteID, room := range h.rooms {
		if room[client] {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, noteID)
			}
		}
	}
	h.mu.Unlock()
	client.closeSend()
}

// CloseRoom evicts all viewers of a deleted note. Their connections stay
// up; they simply stop receiving frames for that note.
func (h *Hub) CloseRoom(noteID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, noteID)
}

// BroadcastUpdate fans a committed edit out to the note's room. When
// origin is non-nil (the edit arrived on the live channel) the sender is
// skipped, since its editor already holds the change. A nil origin means
// the edit came through the REST path and every viewer gets it.
// Delivery is best-effort, at-most-once: a member whose buffer is full
// drops the frame.
func (h *Hub) BroadcastUpdate(frame UpdateFrame, origin *Client) {
	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling update frame: %v", err)
		return
	}
	msg, _ := json.Marshal(WSMessage{Type: UpdateType, NoteID: frame.NoteID, Payload: payload})

	// Collect recipients under the lock, send outside it.
	h.mu.Lock()
	clientsToSend := make([]*Client, 0, len(h.rooms[frame.NoteID]))
	for client := range h.rooms[frame.NoteID] {
		if client != origin {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	for _, client := range clientsToSend {
		client.deliver(msg)
	}
}

// InRoom reports room membership. Test hook.
func (h *Hub) InRoom(noteID string, client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[noteID][client]
}

// RoomExists reports whether any viewer is registered for the note.
func (h *Hub) RoomExists(noteID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[noteID]
	return ok
}
