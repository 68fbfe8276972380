// Package registry implements the instance-id-keyed proxy-object registry
// from spec §3/§4.5/§9: a process-wide monotonically increasing instance id
// naming each plugin instance, looked up under a reader-preferring lock.
// Cross-object references never outlive a lookup's lock guard -- this is
// the "arena+index" answer to the source's cyclic proxy/host-context
// ownership (spec §9).
package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/sammck-go/abibridge/pkg/rwpref"
)

// InstanceID names one plugin instance for the lifetime of a worker
// process. Unique and never reused, per spec §3.
type InstanceID uint64

// State is an instance's coarse lifecycle phase. The foreign-side main
// context (pkg/maincontext) consults this across every instance to decide
// whether it is safe to pump UI events, per spec §4.8/§9.
type State int

const (
	StateInitializing State = iota
	StateActive
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Entry is one registered instance. Object is whatever the caller wants to
// associate with the id -- a native-side proxy or a foreign-side instance
// struct, depending on which side of the bridge this registry belongs to.
type Entry struct {
	ID     InstanceID
	Object interface{}
	State  State
}

// Registry is an instance-id-keyed table, guarded by a reader-preferring
// lock (spec §3: "guards access with a reader-preferring lock"). Distinct
// Registry values are used on the native side (proxies) and the foreign
// side (loaded plugin objects); they share no state.
type Registry struct {
	lock    rwpref.Lock
	nextID  uint64
	entries map[InstanceID]*Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[InstanceID]*Entry)}
}

// Register issues a fresh instance id for object and inserts it in state
// StateInitializing. Insertions take the writer lock, per spec §4.5.
func (r *Registry) Register(object interface{}) InstanceID {
	id := InstanceID(atomic.AddUint64(&r.nextID, 1) - 1)
	r.lock.Lock()
	r.entries[id] = &Entry{ID: id, Object: object, State: StateInitializing}
	r.lock.Unlock()
	return id
}

// Get looks up id under the reader lock and returns the entry plus a
// release function the caller must call exactly once when done using it --
// "the caller holds the lock for as long as the returned reference is
// used" (spec §4.5). ok is false if no such entry exists, in which case
// release is a no-op.
func (r *Registry) Get(id InstanceID) (entry *Entry, release func(), ok bool) {
	r.lock.RLock()
	e, found := r.entries[id]
	if !found {
		r.lock.RUnlock()
		return nil, func() {}, false
	}
	return e, r.lock.RUnlock, true
}

// SetState updates id's lifecycle state under the writer lock. Returns an
// error if id is not registered.
func (r *Registry) SetState(id InstanceID, state State) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("registry: unknown instance id %d", id)
	}
	e.State = state
	return nil
}

// Unregister removes id under the writer lock. A no-op if id is absent.
func (r *Registry) Unregister(id InstanceID) {
	r.lock.Lock()
	delete(r.entries, id)
	r.lock.Unlock()
}

// AnyInitializingOrTerminating reports whether any registered instance is
// currently in StateInitializing or StateTerminating. The foreign-side main
// context's allow_fn (spec §4.8) uses this to avoid pumping UI events into
// a half-constructed or half-destroyed plugin.
func (r *Registry) AnyInitializingOrTerminating() bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, e := range r.entries {
		if e.State == StateInitializing || e.State == StateTerminating {
			return true
		}
	}
	return false
}

// Len returns the number of currently registered instances.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.entries)
}
