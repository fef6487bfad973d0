package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opcfoundry/opcua-runtime/errors"
)

// SubscriptionState is the liveness state of a subscription.
type SubscriptionState int32

const (
	SubscriptionActive SubscriptionState = iota
	SubscriptionDeleting
	SubscriptionDeleted
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionActive:
		return "active"
	case SubscriptionDeleting:
		return "deleting"
	case SubscriptionDeleted:
		return "deleted"
	}
	return "unknown"
}

// Subscription groups monitored item streams under one server-side
// subscription. Deleting it ends every owned stream; the server tears
// the items down with the subscription, so their individual delete
// requests are skipped.
type Subscription struct {
	id                 uint32
	publishingInterval time.Duration

	mu    sync.Mutex
	items map[uint32]*ItemStream

	state         atomic.Int32
	deleteClaimed atomic.Bool
	deleter       Deleter
}

// NewSubscription wraps a server-assigned subscription id. deleter
// issues the engine-side subscription delete and runs at most once.
func NewSubscription(id uint32, publishingInterval time.Duration, deleter Deleter) *Subscription {
	return &Subscription{
		id:                 id,
		publishingInterval: publishingInterval,
		items:              make(map[uint32]*ItemStream),
		deleter:            deleter,
	}
}

// ID returns the server-assigned subscription id.
func (s *Subscription) ID() uint32 { return s.id }

// PublishingInterval returns the revised publishing interval the server
// granted.
func (s *Subscription) PublishingInterval() time.Duration { return s.publishingInterval }

// State returns the subscription's liveness state.
func (s *Subscription) State() SubscriptionState { return SubscriptionState(s.state.Load()) }

// Attach registers a stream as owned by this subscription. Fails once
// the subscription is no longer active.
func (s *Subscription) Attach(item *ItemStream) error {
	if s.State() != SubscriptionActive {
		return errors.Cancelled(errors.PhaseSubscribe,
			"subscription "+s.State().String())
	}
	s.mu.Lock()
	s.items[item.MonitoredItemID()] = item
	s.mu.Unlock()
	return nil
}

// Detach removes a stream, typically after its individual Close.
func (s *Subscription) Detach(monitoredItemID uint32) {
	s.mu.Lock()
	delete(s.items, monitoredItemID)
	s.mu.Unlock()
}

// Items returns the number of attached streams.
func (s *Subscription) Items() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Delete removes the subscription from the server and ends every
// attached stream. The engine-side delete runs at most once; later
// calls report the subscription already deleted.
func (s *Subscription) Delete(ctx context.Context) error {
	if !s.deleteClaimed.CompareAndSwap(false, true) {
		return errors.Cancelled(errors.PhaseSubscribe, "subscription already deleted")
	}
	s.state.Store(int32(SubscriptionDeleting))

	var deleteErr error
	if s.deleter != nil {
		deleteErr = s.deleter(ctx)
	}
	s.End(errors.Cancelled(errors.PhaseSubscribe, "subscription deleted"))
	return deleteErr
}

// End terminates every attached stream without an engine round trip.
// Used for connection loss and by Delete after the server call.
func (s *Subscription) End(err error) {
	s.deleteClaimed.Store(true)
	s.state.Store(int32(SubscriptionDeleted))

	s.mu.Lock()
	items := make([]*ItemStream, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	s.items = make(map[uint32]*ItemStream)
	s.mu.Unlock()

	for _, it := range items {
		it.End(err)
	}
}
