// Package redisstore keeps entries in Redis and uses pub/sub for change notifications,
// so subscribers in other processes see every write.
package redisstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"quotecollector/pkg/storage"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "quotecollector:"

type Store struct {
	client *redis.Client
	prefix string
}

var _ storage.Store = (*Store)(nil)

var (
	newRedisClient = func(opts *redis.Options) *redis.Client {
		return redis.NewClient(opts)
	}
	pingRedis = func(ctx context.Context, client *redis.Client) error {
		return client.Ping(ctx).Err()
	}
)

// Open connects to addr, which is either host:port or a redis:// URL.
func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	client := newRedisClient(opts)
	if err := pingRedis(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return New(client, prefix), nil
}

// New wraps an existing client. Keys are written under prefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) objectKey(id string) string { return s.prefix + "object:" + id }
func (s *Store) stateKey(id string) string  { return s.prefix + "state:" + id }
func (s *Store) channel(id string) string   { return s.prefix + "change:" + id }

func (s *Store) GetObject(ctx context.Context, id string) (*storage.Object, error) {
	raw, err := s.client.Get(ctx, s.objectKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get object %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}

	var obj storage.Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode object %s: %w", id, err)
	}
	return &obj, nil
}

func (s *Store) CreateObject(ctx context.Context, obj storage.Object) error {
	if obj.Native == nil {
		obj.Native = map[string]any{}
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode object %s: %w", obj.ID, err)
	}

	created, err := s.client.SetNX(ctx, s.objectKey(obj.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("create object %s: %w", obj.ID, err)
	}
	if !created {
		return fmt.Errorf("create object %s: %w", obj.ID, storage.ErrExists)
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, id string) (*storage.State, error) {
	raw, err := s.client.Get(ctx, s.stateKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get state %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", id, err)
	}

	st, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("decode state %s: %w", id, err)
	}
	return st, nil
}

func (s *Store) SetState(ctx context.Context, id string, val any, ack bool) error {
	obj, err := s.GetObject(ctx, id)
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	if !obj.Writable() {
		return fmt.Errorf("set state %s: %w", id, storage.ErrNotWritable)
	}

	now := time.Now().UTC()
	next := storage.State{Val: val, Ack: ack, Ts: now, LC: now}

	prev, err := s.GetState(ctx, id)
	switch {
	case err == nil && sameVal(prev.Val, val):
		next.LC = prev.LC
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("set state: %w", err)
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", id, err)
	}
	change, err := json.Marshal(storage.StateChange{ID: id, State: next})
	if err != nil {
		return fmt.Errorf("encode change %s: %w", id, err)
	}

	if err := s.client.Set(ctx, s.stateKey(id), raw, 0).Err(); err != nil {
		return fmt.Errorf("set state %s: %w", id, err)
	}
	if err := s.client.Publish(ctx, s.channel(id), change).Err(); err != nil {
		return fmt.Errorf("publish change %s: %w", id, err)
	}
	return nil
}

// SubscribeStates pattern-subscribes to the change channel; the glob applies to entry ids.
func (s *Store) SubscribeStates(ctx context.Context, pattern string) (storage.Subscription, error) {
	ps := s.client.PSubscribe(ctx, s.channel(pattern))
	// wait for the subscription to be confirmed so no write is missed afterwards
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
	}

	sub := &subscription{ps: ps, ch: make(chan storage.StateChange, 256)}
	go sub.forward()
	return sub, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type subscription struct {
	ps *redis.PubSub
	ch chan storage.StateChange
}

func (s *subscription) C() <-chan storage.StateChange { return s.ch }

func (s *subscription) Close() error {
	return s.ps.Close()
}

func (s *subscription) forward() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		var change storage.StateChange
		dec := json.NewDecoder(strings.NewReader(msg.Payload))
		dec.UseNumber()
		if err := dec.Decode(&change); err != nil {
			continue
		}
		select {
		case s.ch <- change:
		default:
		}
	}
}

func decodeState(raw []byte) (*storage.State, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var st storage.State
	if err := dec.Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// sameVal compares a decoded value with a value about to be written.
func sameVal(stored, next any) bool {
	raw, err := json.Marshal(next)
	if err != nil {
		return false
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return false
	}
	return reflect.DeepEqual(stored, decoded)
}
