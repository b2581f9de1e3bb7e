// Package storage defines the entry store the collector publishes into.
//
// An entry is an Object (metadata) plus an optional State (value). Backends live in
// the memory, gormstore and redisstore subpackages.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("entry not found")
	ErrExists      = errors.New("entry already exists")
	ErrNotWritable = errors.New("entry does not accept values")
)

// Store is a key/value entry store with get/create/set semantics and change notifications.
type Store interface {
	// GetObject returns ErrNotFound when id has never been created.
	GetObject(ctx context.Context, id string) (*Object, error)
	// CreateObject returns ErrExists when id is already present.
	CreateObject(ctx context.Context, obj Object) error
	// GetState returns ErrNotFound when id holds no value yet.
	GetState(ctx context.Context, id string) (*State, error)
	// SetState writes val and notifies subscribers. It fails with ErrNotFound for
	// unknown ids and ErrNotWritable for containers.
	SetState(ctx context.Context, id string, val any, ack bool) error
	// SubscribeStates delivers changes whose id matches the glob pattern.
	SubscribeStates(ctx context.Context, pattern string) (Subscription, error)
	Close() error
}

// Subscription is a stream of state changes.
type Subscription interface {
	C() <-chan StateChange
	Close() error
}
