package arena

import (
	"sync"

	"go.uber.org/zap"

	"github.com/opcfoundry/opcua-runtime/errors"
)

// Kind labels what engine object a handle owns.
type Kind string

const (
	KindClient        Kind = "client"
	KindServer        Kind = "server"
	KindSubscription  Kind = "subscription"
	KindMonitoredItem Kind = "monitored_item"
	KindContinuation  Kind = "continuation_point"
)

// EventType discriminates arena lifecycle events.
type EventType uint8

const (
	EventAcquired EventType = iota
	EventReleased
)

// Event notifies observers of handle lifecycle changes.
type Event struct {
	Type   EventType
	Kind   Kind
	Handle *Handle
}

// Observer receives lifecycle events. Used by shutdown instrumentation to
// verify ordering: all pending work must drain before the owning handle's
// EventReleased fires.
type Observer interface {
	OnHandleEvent(Event)
}

// Handle owns one non-null engine pointer. Exactly one Handle exists per
// pointer; sharing happens by reference, never by duplication, and the
// release function runs exactly once. Release must be invoked from the
// driver goroutine of the connection the pointer belongs to.
type Handle struct {
	arena   *Arena
	kind    Kind
	ptr     uintptr
	release func()

	mu       sync.Mutex
	released bool
}

// Kind returns the handle's kind label.
func (h *Handle) Kind() Kind { return h.kind }

// Pointer returns the wrapped engine pointer. Valid only until Release.
func (h *Handle) Pointer() uintptr { return h.ptr }

// Released reports whether the handle has been released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release invokes the engine's release function. The first call wins;
// any further call is a defect in the binding and is reported through the
// returned error, never executed twice.
func (h *Handle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		err := errors.Internal(errors.PhaseShutdown,
			string(h.kind)+" handle released twice")
		h.arena.logger().Error("double release", zap.String("kind", string(h.kind)), zap.Error(err))
		return err
	}
	h.released = true
	h.mu.Unlock()

	if h.release != nil {
		h.release()
	}
	h.arena.forget(h)
	return nil
}

// Arena tracks ownership of engine-allocated handles and exposes live
// counts for teardown instrumentation.
type Arena struct {
	mu        sync.Mutex
	live      map[*Handle]struct{}
	byKind    map[Kind]int
	observers []Observer
	log       *zap.Logger
}

// New creates an empty arena.
func New() *Arena {
	return &Arena{
		live:   make(map[*Handle]struct{}),
		byKind: make(map[Kind]int),
		log:    zap.NewNop(),
	}
}

// SetLogger replaces the arena's logger.
func (a *Arena) SetLogger(log *zap.Logger) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if log != nil {
		a.log = log
	}
}

func (a *Arena) logger() *zap.Logger {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.log
}

// Acquire wraps a non-null engine pointer in a Handle owning it. A zero
// pointer means the engine failed to allocate and yields an allocation
// error.
func (a *Arena) Acquire(kind Kind, ptr uintptr, release func()) (*Handle, error) {
	if ptr == 0 {
		return nil, errors.AllocationFailed(errors.PhaseSession, string(kind))
	}

	h := &Handle{arena: a, kind: kind, ptr: ptr, release: release}

	a.mu.Lock()
	a.live[h] = struct{}{}
	a.byKind[kind]++
	obs := append([]Observer(nil), a.observers...)
	a.mu.Unlock()

	for _, o := range obs {
		o.OnHandleEvent(Event{Type: EventAcquired, Kind: kind, Handle: h})
	}
	return h, nil
}

// Live returns the number of unreleased handles, optionally filtered by
// kind.
func (a *Arena) Live(kinds ...Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(kinds) == 0 {
		return len(a.live)
	}
	n := 0
	for _, k := range kinds {
		n += a.byKind[k]
	}
	return n
}

// Subscribe adds an observer for lifecycle events.
func (a *Arena) Subscribe(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// Unsubscribe removes an observer.
func (a *Arena) Unsubscribe(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, obs := range a.observers {
		if obs == o {
			a.observers = append(a.observers[:i], a.observers[i+1:]...)
			return
		}
	}
}

func (a *Arena) forget(h *Handle) {
	a.mu.Lock()
	if _, ok := a.live[h]; ok {
		delete(a.live, h)
		a.byKind[h.kind]--
	}
	obs := append([]Observer(nil), a.observers...)
	a.mu.Unlock()

	for _, o := range obs {
		o.OnHandleEvent(Event{Type: EventReleased, Kind: h.kind, Handle: h})
	}
}
