// Package document defines the in-memory document handle owned by a live
// workspace. The handle is deliberately small: a revisioned key-value body
// plus an update hook the workspace's provider subscribes to. Anything richer
// (schemas, rich text, CRDTs) lives behind the provider boundary.
package document

import "sync"

// Update describes one mutation of a document entry.
type Update struct {
	Workspace string `json:"workspace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Delete    bool   `json:"delete,omitempty"`
	Rev       uint64 `json:"rev"`
}

// Document is a concurrent revisioned key-value body. The zero value is not
// usable; construct with New.
type Document struct {
	id string

	mu      sync.RWMutex
	entries map[string]string
	rev     uint64
	onLocal func(Update)
}

// New creates an empty document for the given workspace id.
func New(id string) *Document {
	return &Document{
		id:      id,
		entries: make(map[string]string),
	}
}

// ID returns the owning workspace id.
func (d *Document) ID() string { return d.id }

// OnLocalUpdate registers the hook invoked for every locally originated
// mutation (Set/Remove). Providers use it to persist or replicate changes.
// The hook runs outside the document lock; at most one hook is kept, the
// last registration wins.
func (d *Document) OnLocalUpdate(fn func(Update)) {
	d.mu.Lock()
	d.onLocal = fn
	d.mu.Unlock()
}

// Set writes a key locally, bumps the revision and notifies the update hook.
func (d *Document) Set(key, value string) Update {
	d.mu.Lock()
	d.rev++
	d.entries[key] = value
	u := Update{Workspace: d.id, Key: key, Value: value, Rev: d.rev}
	fn := d.onLocal
	d.mu.Unlock()

	if fn != nil {
		fn(u)
	}
	return u
}

// Remove deletes a key locally, bumps the revision and notifies the update hook.
func (d *Document) Remove(key string) Update {
	d.mu.Lock()
	d.rev++
	delete(d.entries, key)
	u := Update{Workspace: d.id, Key: key, Delete: true, Rev: d.rev}
	fn := d.onLocal
	d.mu.Unlock()

	if fn != nil {
		fn(u)
	}
	return u
}

// Apply merges a remotely originated update into the document without
// notifying the local hook (avoids replication echo). The revision counter
// advances monotonically past the update's revision.
func (d *Document) Apply(u Update) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.Delete {
		delete(d.entries, u.Key)
	} else {
		d.entries[u.Key] = u.Value
	}
	if u.Rev > d.rev {
		d.rev = u.Rev
	} else {
		d.rev++
	}
}

// Get returns the value for key and whether it exists.
func (d *Document) Get(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.entries[key]
	return v, ok
}

// Snapshot returns a copy of the document body.
func (d *Document) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.entries))
	for k, v := range d.entries {
		out[k] = v
	}
	return out
}

// Rev returns the current revision counter.
func (d *Document) Rev() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rev
}

// Len returns the number of entries.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
