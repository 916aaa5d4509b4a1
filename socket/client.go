package socket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"notebridge/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from the dev frontend origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one live connection. A single connection may view several
// notes at once; room membership lives in the hub.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	UserID string
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}

	go client.writePump()
	go client.readPump()
}

// deliver queues a frame for the connection. Delivery is at-most-once: a
// full buffer or an already-closed connection drops the frame.
func (c *Client) deliver(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- msg:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full, dropping frame", c.UserID)
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) readPump() {
	defer func() {
		// Disconnection deregisters the client from every room it joined.
		c.Hub.RemoveClient(c)
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		switch msg.Type {
		case JoinType:
			// A join without a note id is ignored; it must not break the connection.
			if msg.NoteID == "" {
				continue
			}
			c.Hub.Join(msg.NoteID, c)

		case LeaveType:
			if msg.NoteID == "" {
				continue
			}
			c.Hub.Leave(msg.NoteID, c)

		case EditType:
			var edit EditPayload
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &edit); err != nil {
					logger.Sugar.Errorf("Error unmarshalling edit payload: %v", err)
					continue
				}
			}
			if msg.NoteID == "" || edit.Content == nil {
				continue
			}
			// The applier is the single choke-point: it persists, appends
			// the audit record, and fans out. The actor id comes from the
			// authenticated connection, never from the frame.
			if err := c.Hub.applier.ApplyLiveEdit(msg.NoteID, c.UserID, edit, c); err != nil {
				c.sendError(msg.NoteID, err)
			}

		default:
			logger.Sugar.Infof("Ignoring unknown message type %q from %s", msg.Type, c.UserID)
		}
	}
}

func (c *Client) sendError(noteID string, cause error) {
	payload, _ := json.Marshal(map[string]string{"error": cause.Error()})
	msg, _ := json.Marshal(WSMessage{Type: ErrorType, NoteID: noteID, Payload: payload})
	c.deliver(msg)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Send ping every 30s
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
