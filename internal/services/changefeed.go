package services

import (
	"log"
	"sync"

	"commandcenter/internal/models"
)

// ChangeFeed is an in-memory pub/sub announcing committed row changes,
// scoped per user. Stores publish a coarse event after every successful
// mutation; any connected sync session subscribes and re-queries on receipt.
// Events carry no row payload beyond routing hints.
type ChangeFeed struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan models.ChangeEvent // userID → subID → chan
	remote      func(models.ChangeEvent)                      // optional cross-instance mirror
}

// NewChangeFeed creates a new change feed bus
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{
		subscribers: make(map[string]map[string]chan models.ChangeEvent),
	}
}

// AttachRemote registers a mirror invoked on every locally published event,
// used to fan events out to other server instances. Must be called before
// traffic starts.
func (f *ChangeFeed) AttachRemote(fn func(models.ChangeEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = fn
}

// Subscribe creates a new event channel for a user. Returns a receive-only channel.
func (f *ChangeFeed) Subscribe(userID, subID string, bufSize int) <-chan models.ChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan models.ChangeEvent, bufSize)
	if _, ok := f.subscribers[userID]; !ok {
		f.subscribers[userID] = make(map[string]chan models.ChangeEvent)
	}
	f.subscribers[userID][subID] = ch

	log.Printf("[FEED] Subscribe: user=%s sub=%s (total=%d)", userID, subID, len(f.subscribers[userID]))

	return ch
}

// Unsubscribe removes a subscription. The channel is NOT closed — the
// subscriber's goroutine should exit via its own done signal, and the
// channel will be GC'd.
func (f *ChangeFeed) Unsubscribe(userID, subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if conns, ok := f.subscribers[userID]; ok {
		delete(conns, subID)
		if len(conns) == 0 {
			delete(f.subscribers, userID)
		}
		log.Printf("[FEED] Unsubscribe: user=%s sub=%s (remaining=%d)", userID, subID, len(conns))
	}
}

// Publish sends an event to all of the user's subscribers and mirrors it to
// the remote hook. Non-blocking — if a subscriber's channel is full the event
// is dropped for that subscriber; it will catch up on its next re-fetch.
func (f *ChangeFeed) Publish(userID string, event models.ChangeEvent) {
	event.UserID = userID
	feedEventsPublished(event.Table)

	f.mu.RLock()
	remote := f.remote
	for _, ch := range f.subscribers[userID] {
		select {
		case ch <- event:
		default:
			// Subscriber is full — skip this one
		}
	}
	f.mu.RUnlock()

	if remote != nil && event.InstanceID == "" {
		remote(event)
	}
}

// Deliver injects an event that originated on another instance. It fans out
// locally but is never mirrored back to the remote hook.
func (f *ChangeFeed) Deliver(event models.ChangeEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers[event.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers for a user
func (f *ChangeFeed) SubscriberCount(userID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.subscribers[userID])
}

// TotalSubscribers returns the number of active subscriptions across users.
func (f *ChangeFeed) TotalSubscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	total := 0
	for _, conns := range f.subscribers {
		total += len(conns)
	}
	return total
}
