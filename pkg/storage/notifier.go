package storage

import (
	"path"
	"sync"
)

const subscriberBuffer = 256

// Notifier fans state changes out to in-process subscribers.
// Used by backends that have no native change feed.
type Notifier struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*localSubscription
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]*localSubscription)}
}

// Subscribe registers a subscriber for ids matching pattern (path.Match syntax).
func (n *Notifier) Subscribe(pattern string) (Subscription, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &localSubscription{
		id:       n.nextID,
		pattern:  pattern,
		ch:       make(chan StateChange, subscriberBuffer),
		notifier: n,
	}
	n.subs[sub.id] = sub
	return sub, nil
}

// Publish delivers change to every matching subscriber without blocking.
// A subscriber whose buffer is full misses the change.
func (n *Notifier) Publish(change StateChange) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, sub := range n.subs {
		if ok, _ := path.Match(sub.pattern, change.ID); !ok {
			continue
		}
		select {
		case sub.ch <- change:
		default:
		}
	}
}

// Close closes every remaining subscription.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, sub := range n.subs {
		close(sub.ch)
		delete(n.subs, id)
	}
}

func (n *Notifier) remove(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subs[id]; ok {
		close(sub.ch)
		delete(n.subs, id)
	}
}

type localSubscription struct {
	id       int
	pattern  string
	ch       chan StateChange
	notifier *Notifier
	once     sync.Once
}

func (s *localSubscription) C() <-chan StateChange { return s.ch }

func (s *localSubscription) Close() error {
	s.once.Do(func() { s.notifier.remove(s.id) })
	return nil
}
