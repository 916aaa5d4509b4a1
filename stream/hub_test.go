package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextWithTimeout(t *testing.T, sub *Subscription) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := sub.Next(ctx)
	require.True(t, ok, "expected an event before the timeout")
	return ev
}

func TestSubscriptionFIFO(t *testing.T) {
	hub := NewHub()
	hub.PollInterval = 10 * time.Millisecond

	sub := hub.Subscribe("nb1")
	defer hub.Unsubscribe(sub)

	e1 := Event{Action: ActionNoteUpdated, NoteID: "n1", Content: "first", Actor: "alice", Timestamp: time.Now()}
	e2 := Event{Action: ActionNoteUpdated, NoteID: "n1", Content: "second", Actor: "bob", Timestamp: time.Now()}
	hub.Publish("nb1", e1)
	hub.Publish("nb1", e2)

	got1 := nextWithTimeout(t, sub)
	got2 := nextWithTimeout(t, sub)
	assert.Equal(t, "first", got1.Content, "oldest event must come out first")
	assert.Equal(t, "second", got2.Content)
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub()
	hub.PollInterval = 10 * time.Millisecond

	subA := hub.Subscribe("nb1")
	subB := hub.Subscribe("nb1")
	defer hub.Unsubscribe(subA)
	defer hub.Unsubscribe(subB)

	hub.Publish("nb1", Event{Action: ActionNoteAdded, NoteID: "n1"})

	assert.Equal(t, "n1", nextWithTimeout(t, subA).NoteID)
	assert.Equal(t, "n1", nextWithTimeout(t, subB).NoteID)
}

func TestUnsubscribeLeavesSiblingsUntouched(t *testing.T) {
	hub := NewHub()
	hub.PollInterval = 10 * time.Millisecond

	gone := hub.Subscribe("nb1")
	stays := hub.Subscribe("nb1")
	defer hub.Unsubscribe(stays)

	hub.Unsubscribe(gone)
	hub.Publish("nb1", Event{Action: ActionNoteUpdated, NoteID: "n1"})

	// The removed subscription's queue stopped growing.
	assert.Equal(t, 0, gone.Pending())
	// The sibling still gets the event.
	assert.Equal(t, "n1", nextWithTimeout(t, stays).NoteID)
	assert.True(t, hub.HasSubscribers("nb1"))
}

func TestPublishToNotebookWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	// Must not panic or create state.
	hub.Publish("nobody-home", Event{Action: ActionNoteUpdated, NoteID: "n1"})
	assert.False(t, hub.HasSubscribers("nobody-home"))
}

func TestNextReturnsOnDisconnect(t *testing.T) {
	hub := NewHub()
	hub.PollInterval = 10 * time.Millisecond

	sub := hub.Subscribe("nb1")
	defer hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := sub.Next(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		assert.False(t, ok, "a cancelled wait must report no event")
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}

func TestNextWakesWithoutWaitingFullInterval(t *testing.T) {
	hub := NewHub()
	hub.PollInterval = 10 * time.Second // would time the test out if waited on

	sub := hub.Subscribe("nb1")
	defer hub.Unsubscribe(sub)

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish("nb1", Event{Action: ActionNoteUpdated, NoteID: "n1"})
	}()

	start := time.Now()
	ev := nextWithTimeout(t, sub)
	assert.Equal(t, "n1", ev.NoteID)
	assert.Less(t, time.Since(start), 2*time.Second, "publish signal should wake the drain immediately")
}
