package storage

import "time"

// Kind distinguishes namespace nodes from value-carrying entries.
type Kind string

const (
	// KindContainer never carries a value.
	KindContainer Kind = "container"
	// KindLeaf carries a value. A leaf whose state is absent is uninitialized.
	KindLeaf Kind = "leaf"
)

// Common holds the display and access metadata of an entry.
type Common struct {
	Name  string `json:"name"`  // display label
	Role  string `json:"role"`  // e.g. "state"
	Type  string `json:"type"`  // structural type tag, "boolean" for every entry
	Read  bool   `json:"read"`  // readable by consumers
	Write bool   `json:"write"` // writable by consumers
}

// Object is the metadata node of an entry, identified by a dotted hierarchical id.
type Object struct {
	ID     string         `json:"_id"`
	Kind   Kind           `json:"kind"`
	Common Common         `json:"common"`
	Native map[string]any `json:"native"`
}

// Writable reports whether the entry accepts state writes.
func (o *Object) Writable() bool {
	return o.Kind == KindLeaf
}

// State is the current value of a leaf entry.
type State struct {
	Val any       `json:"val"`
	Ack bool      `json:"ack"` // true when written by the collector itself
	Ts  time.Time `json:"ts"`  // last write
	LC  time.Time `json:"lc"`  // last change of Val
}

// StateChange is delivered to subscribers after every state write.
type StateChange struct {
	ID    string `json:"id"`
	State State  `json:"state"`
}
