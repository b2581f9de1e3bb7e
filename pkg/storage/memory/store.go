// Package memory is an in-process entry store. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"quotecollector/pkg/storage"
)

type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]storage.Object
	states  map[string]storage.State

	notifier *storage.Notifier
}

var _ storage.Store = (*MemoryStore)(nil)

func NewStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]storage.Object),
		states:   make(map[string]storage.State),
		notifier: storage.NewNotifier(),
	}
}

func (s *MemoryStore) GetObject(_ context.Context, id string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("get object %s: %w", id, storage.ErrNotFound)
	}
	return &obj, nil
}

func (s *MemoryStore) CreateObject(_ context.Context, obj storage.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[obj.ID]; ok {
		return fmt.Errorf("create object %s: %w", obj.ID, storage.ErrExists)
	}
	if obj.Native == nil {
		obj.Native = map[string]any{}
	}
	s.objects[obj.ID] = obj
	return nil
}

func (s *MemoryStore) GetState(_ context.Context, id string) (*storage.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[id]
	if !ok {
		return nil, fmt.Errorf("get state %s: %w", id, storage.ErrNotFound)
	}
	return &st, nil
}

func (s *MemoryStore) SetState(_ context.Context, id string, val any, ack bool) error {
	s.mu.Lock()
	obj, ok := s.objects[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("set state %s: %w", id, storage.ErrNotFound)
	}
	if !obj.Writable() {
		s.mu.Unlock()
		return fmt.Errorf("set state %s: %w", id, storage.ErrNotWritable)
	}

	now := time.Now()
	next := storage.State{Val: val, Ack: ack, Ts: now, LC: now}
	if prev, ok := s.states[id]; ok && reflect.DeepEqual(prev.Val, val) {
		next.LC = prev.LC
	}
	s.states[id] = next
	s.mu.Unlock()

	s.notifier.Publish(storage.StateChange{ID: id, State: next})
	return nil
}

func (s *MemoryStore) SubscribeStates(_ context.Context, pattern string) (storage.Subscription, error) {
	return s.notifier.Subscribe(pattern)
}

// Len returns the number of objects, containers included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// IDs returns every object id in no particular order.
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.objects))
	for id := range s.objects {
		out = append(out, id)
	}
	return out
}

func (s *MemoryStore) Close() error {
	s.notifier.Close()
	return nil
}
