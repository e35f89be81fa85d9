package tasks

import (
	"sync"

	"github.com/drivehop/drivehop/internal/models"
)

// EventType classifies a task event.
type EventType string

const (
	EventCreated EventType = "task_created"
	EventUpdated EventType = "task_updated"
	EventDone    EventType = "task_done"
)

// TaskEvent is one broadcastable change of task state.
//
// The embedded task is a snapshot; listeners must not mutate it.
type TaskEvent struct {
	Type EventType    `json:"type"`
	Task *models.Task `json:"task"`
}

func createdEvent(t *models.Task) TaskEvent { return TaskEvent{Type: EventCreated, Task: snapshot(t)} }
func updatedEvent(t *models.Task) TaskEvent { return TaskEvent{Type: EventUpdated, Task: snapshot(t)} }
func doneEvent(t *models.Task) TaskEvent    { return TaskEvent{Type: EventDone, Task: snapshot(t)} }

// snapshot copies the task so listeners can serialize the event while the
// pipeline keeps mutating the live one.
func snapshot(t *models.Task) *models.Task {
	copied := *t
	if t.Result != nil {
		result := *t.Result
		copied.Result = &result
	}
	return &copied
}

// Broadcaster fans task events out to any number of listeners.
//
// Delivery is fire-and-forget: a subscriber whose channel is full misses
// the event, and listeners that were not subscribed at the time simply
// never see it. Listeners re-sync by listing tasks.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan TaskEvent
	next int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan TaskEvent)}
}

// Subscribe registers a listener and returns its event channel along with
// an unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan TaskEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan TaskEvent, 16)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish sends the event to every subscriber without blocking.
func (b *Broadcaster) Publish(event TaskEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
			// Sent successfully
		default:
			// Listener is behind, skip this update
		}
	}
}
