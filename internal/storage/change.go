package storage

import "sync"

// Kind is the kind of mutation a [Change] describes.
type Kind string

// Mutation kinds.
const (
	KindPut    Kind = "put"
	KindDelete Kind = "delete"
	KindMerge  Kind = "merge"
)

// Change describes one successful mutation.
type Change struct {
	// Source is "meta" or "blob".
	Source string
	Kind   Kind
	// ID is the identifier of the mutated item. Empty for bulk merges.
	ID string
}

// Observer receives change notifications.
//
// OnChange is called synchronously after the mutation was persisted and must
// not block.
type Observer interface {
	OnChange(c Change)
}

// ObserverFunc adapts a function into an [Observer].
type ObserverFunc func(c Change)

// OnChange implements [Observer].
func (f ObserverFunc) OnChange(c Change) {
	f(c)
}

// Notifier fans out changes to registered observers.
//
// The zero value is ready to use. A nil *Notifier drops every change.
type Notifier struct {
	mu        sync.RWMutex
	observers []Observer
}

// AddObserver registers an observer.
func (n *Notifier) AddObserver(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, o)
}

// Publish notifies every observer.
func (n *Notifier) Publish(c Change) {
	if n == nil {
		return
	}
	n.mu.RLock()
	obs := n.observers
	n.mu.RUnlock()
	for _, o := range obs {
		o.OnChange(c)
	}
}
