package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription is a stub push registration. No push-origination backend
// exists; the list stands in for one so the rest of the pipeline exercises
// the real shapes.
type Subscription struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubscriptionStore holds stub push subscriptions in memory.
type SubscriptionStore struct {
	mu    sync.Mutex
	subs  map[string]Subscription
	clock func() time.Time
}

// NewSubscriptionStore creates an empty subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		subs:  make(map[string]Subscription),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers a stub subscription and returns it.
func (s *SubscriptionStore) Subscribe(endpoint string) Subscription {
	sub := Subscription{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		CreatedAt: s.clock(),
	}

	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription by id.
func (s *SubscriptionStore) Unsubscribe(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[id]; !ok {
		return fmt.Errorf("unknown subscription %s", id)
	}
	delete(s.subs, id)
	return nil
}

// List returns the current subscriptions.
func (s *SubscriptionStore) List() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

// TouchPushSubscription satisfies the dispatch service's secondary
// permission trigger: touching the push surface registers a stub
// subscription when none exists yet.
func (s *SubscriptionStore) TouchPushSubscription(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.subs)
	s.mu.Unlock()

	if count == 0 {
		s.Subscribe("stub://local")
	}
	return nil
}
