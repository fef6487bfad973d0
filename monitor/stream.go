package monitor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// ItemState is the liveness state of a monitored item stream.
type ItemState int32

const (
	ItemActive ItemState = iota
	ItemDeleting
	ItemDeleted
)

func (s ItemState) String() string {
	switch s {
	case ItemActive:
		return "active"
	case ItemDeleting:
		return "deleting"
	case ItemDeleted:
		return "deleted"
	}
	return "unknown"
}

// Update is one notification for a monitored item: a data change (Value
// set) or an event (EventFields set).
type Update struct {
	Value       ua.DataValue
	EventFields []ua.Variant
}

// Deleter tears down the server-side monitored item. It runs at most
// once, from whichever termination path wins.
type Deleter func(ctx context.Context) error

// ItemStream buffers notifications for one monitored item. Publication
// is non-blocking; consumption goes through Recv or Chan. All methods
// are safe for concurrent use.
type ItemStream struct {
	subscriptionID  uint32
	monitoredItemID uint32

	updates chan Update
	lost    atomic.Uint64
	state   atomic.Int32

	endOnce sync.Once
	ended   chan struct{}
	errMu   sync.Mutex
	err     error

	deleteClaimed atomic.Bool
	deleter       Deleter

	metrics *Metrics
}

// NewItemStream creates an active stream with the given buffer capacity.
// Capacity below one is raised to one. deleter may be nil for streams
// whose item the subscription tears down wholesale.
func NewItemStream(subscriptionID, monitoredItemID uint32, capacity int, deleter Deleter, metrics *Metrics) *ItemStream {
	if capacity < 1 {
		capacity = 1
	}
	return &ItemStream{
		subscriptionID:  subscriptionID,
		monitoredItemID: monitoredItemID,
		updates:         make(chan Update, capacity),
		ended:           make(chan struct{}),
		deleter:         deleter,
		metrics:         metrics,
	}
}

// SubscriptionID returns the owning subscription's server-assigned id.
func (s *ItemStream) SubscriptionID() uint32 { return s.subscriptionID }

// MonitoredItemID returns the item's server-assigned id.
func (s *ItemStream) MonitoredItemID() uint32 { return s.monitoredItemID }

// State returns the stream's liveness state.
func (s *ItemStream) State() ItemState { return ItemState(s.state.Load()) }

// Lost returns how many notifications were dropped because the buffer
// was full. The counter never decreases.
func (s *ItemStream) Lost() uint64 { return s.lost.Load() }

// Publish buffers one notification. When the buffer is full the update
// is dropped and the Lost counter advances. Publications after the
// stream ended are discarded silently.
func (s *ItemStream) Publish(u Update) {
	select {
	case <-s.ended:
		return
	default:
	}
	select {
	case s.updates <- u:
		if s.metrics != nil {
			s.metrics.Delivered.Inc()
		}
	default:
		s.lost.Add(1)
		if s.metrics != nil {
			s.metrics.Lost.Inc()
		}
	}
}

// Recv returns the next notification in engine order. After the stream
// has ended it keeps returning buffered notifications until the buffer
// is drained, then returns the terminal error.
func (s *ItemStream) Recv(ctx context.Context) (Update, error) {
	select {
	case u := <-s.updates:
		return u, nil
	default:
	}
	select {
	case u := <-s.updates:
		return u, nil
	case <-s.ended:
		// The end signal may race a buffered update.
		select {
		case u := <-s.updates:
			return u, nil
		default:
		}
		return Update{}, s.terminalErr()
	case <-ctx.Done():
		return Update{}, errors.Wrap(errors.PhaseSubscribe, errors.KindCancelled,
			ctx.Err(), "waiting for notification")
	}
}

// Chan exposes the underlying buffer for select-based consumption. Pair
// it with Done to observe termination; the channel is never closed.
func (s *ItemStream) Chan() <-chan Update { return s.updates }

// Done is closed when the stream ends. Err reports why.
func (s *ItemStream) Done() <-chan struct{} { return s.ended }

// Err returns the terminal error once the stream has ended, nil before.
func (s *ItemStream) Err() error {
	select {
	case <-s.ended:
		return s.terminalErr()
	default:
		return nil
	}
}

// Close deletes the monitored item and ends the stream. The engine-side
// delete runs at most once even when Close races subscription deletion
// or connection loss; later calls return the terminal error.
func (s *ItemStream) Close(ctx context.Context) error {
	if !s.deleteClaimed.CompareAndSwap(false, true) {
		return s.Err()
	}
	s.state.CompareAndSwap(int32(ItemActive), int32(ItemDeleting))
	var deleteErr error
	if s.deleter != nil {
		deleteErr = s.deleter(ctx)
	}
	s.End(errors.Cancelled(errors.PhaseSubscribe, "monitored item deleted"))
	return deleteErr
}

// End terminates the stream without deleting the engine-side item. The
// router and subscription use it for connection loss and wholesale
// subscription deletion. Idempotent; the first error wins.
func (s *ItemStream) End(err error) {
	s.endOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.state.Store(int32(ItemDeleted))
		// The engine-side delete must not run later through Close.
		s.deleteClaimed.Store(true)
		close(s.ended)
	})
}

func (s *ItemStream) terminalErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		return errors.Cancelled(errors.PhaseSubscribe, "stream ended")
	}
	return s.err
}
