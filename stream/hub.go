// Package stream delivers structural notebook events (note added,
// updated, deleted) to long-lived, possibly intermittently-read
// subscribers. Each subscription owns an unbounded FIFO queue; there is
// no replay after a disconnect, so a reconnecting client re-syncs from
// current notebook state.
package stream

import (
	"context"
	"sync"
	"time"
)

const (
	ActionNoteAdded   = "note_added"
	ActionNoteUpdated = "note_updated"
	ActionNoteDeleted = "note_deleted"
)

// DefaultPollInterval is the fallback wake period of the drain loop. It
// bounds delivery latency if a wake signal is ever missed; the publish
// signal normally wakes the drain immediately.
const DefaultPollInterval = 500 * time.Millisecond

type Event struct {
	Action    string    `json:"action"`
	NoteID    string    `json:"note_id"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscription is one notebook watcher. Events accumulate in arrival
// order and are handed out one at a time by Next.
type Subscription struct {
	notebookID string
	interval   time.Duration

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
}

// Hub owns the per-notebook subscription sets. The map is only touched
// through Subscribe/Unsubscribe/Publish under the hub's lock.
type Hub struct {
	mu           sync.Mutex
	subs         map[string]map[*Subscription]bool
	PollInterval time.Duration
}

func NewHub() *Hub {
	return &Hub{
		subs:         make(map[string]map[*Subscription]bool),
		PollInterval: DefaultPollInterval,
	}
}

func (h *Hub) Subscribe(notebookID string) *Subscription {
	sub := &Subscription{
		notebookID: notebookID,
		interval:   h.PollInterval,
		wake:       make(chan struct{}, 1),
	}
	h.mu.Lock()
	if h.subs[notebookID] == nil {
		h.subs[notebookID] = make(map[*Subscription]bool)
	}
	h.subs[notebookID][sub] = true
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscription; its queue stops growing. Sibling
// subscriptions on the same notebook are untouched.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.notebookID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.notebookID)
		}
	}
}

// Publish appends the event to every active subscription queue for the
// notebook. Publishing to a notebook with no subscribers is a no-op.
func (h *Hub) Publish(notebookID string, ev Event) {
	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs[notebookID]))
	for sub := range h.subs[notebookID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.push(ev)
	}
}

// HasSubscribers reports whether anyone is watching the notebook.
func (h *Hub) HasSubscribers(notebookID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[notebookID]) > 0
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available or ctx is cancelled, and
// returns the oldest queued event. The wait is cooperative: it suspends
// on the wake signal with the poll interval as a fallback tick, so
// ordering is strict FIFO per subscription with bounded latency.
func (s *Subscription) Next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, true
		}
		s.mu.Unlock()

		interval := s.interval
		if interval <= 0 {
			interval = DefaultPollInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Event{}, false
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Pending reports the queue depth. Test hook.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
