// Package notifier fans listing state changes out to connected viewers.
// Subscribers hold an explicit handle whose Cancel unregisters them
// deterministically; there is no ambient global channel.  Delivery is
// best-effort: a subscriber whose buffer is full misses the event and is
// expected to reconcile by re-reading the available listings on reconnect.
package notifier

import (
	"sync"
	"time"

	"github.com/iliyamo/campus-food-rescue/internal/model"
)

// Event kinds.  Values double as SSE event names.
const (
	KindListingAdded   = "listing_added"
	KindListingClaimed = "listing_claimed"
	KindListingExpired = "listing_expired"
)

// ChangeEvent describes one listing state change.  Listing carries a
// snapshot of the listing's public fields at emission time; events are
// ephemeral and never persisted beyond delivery.
type ChangeEvent struct {
	Kind      string        `json:"kind"`
	ListingID string        `json:"listing_id"`
	Timestamp time.Time     `json:"timestamp"`
	Listing   model.Listing `json:"listing"`
}

// subscriberBuffer is how many undelivered events a single subscriber may
// lag behind before events are dropped for it.
const subscriberBuffer = 16

// Subscription is a live event feed for one viewer connection.  C carries
// events until Cancel is called, after which C is closed.  Cancel is safe
// to call more than once.
type Subscription struct {
	C      <-chan ChangeEvent
	ch     chan ChangeEvent
	cancel func()
	once   sync.Once
}

// Cancel unregisters the subscription and closes C.
func (s *Subscription) Cancel() { s.once.Do(s.cancel) }

// Notifier is a process-local publish/subscribe hub.  Publish holds the
// lock while sending to every subscriber channel, so events for the same
// listing reach each subscriber in emission order; no ordering is promised
// across different listings.
type Notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// New returns a Notifier with no subscribers.
func New() *Notifier {
	return &Notifier{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new viewer and returns its handle.
func (n *Notifier) Subscribe() *Subscription {
	ch := make(chan ChangeEvent, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch}
	sub.cancel = func() {
		n.mu.Lock()
		delete(n.subs, sub)
		n.mu.Unlock()
		close(ch)
	}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

// Publish delivers the event to every current subscriber without blocking.
// A slow subscriber simply misses the event.
func (n *Notifier) Publish(ev ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full; drop for this subscriber. The read path stays
			// authoritative, so the viewer reconciles on its next fetch.
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
