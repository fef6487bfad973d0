package client

import (
	"context"
	"time"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/monitor"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// SubscriptionParams request subscription settings; the server may
// revise them.
type SubscriptionParams struct {
	PublishingInterval         time.Duration
	LifetimeCount              uint32
	MaxKeepAliveCount          uint32
	MaxNotificationsPerPublish uint32
	Priority                   uint8
}

func (p SubscriptionParams) withDefaults() SubscriptionParams {
	if p.PublishingInterval <= 0 {
		p.PublishingInterval = 100 * time.Millisecond
	}
	if p.LifetimeCount == 0 {
		p.LifetimeCount = 2400
	}
	if p.MaxKeepAliveCount == 0 {
		p.MaxKeepAliveCount = 10
	}
	return p
}

// MonitorOptions tune one monitored item.
type MonitorOptions struct {
	AttributeID      uint32 // defaults to the value attribute
	SamplingInterval time.Duration
	// QueueSize is the server-side notification queue depth.
	QueueSize     uint32
	DiscardOldest bool
	// BufferSize is the client-side stream buffer; defaults to the
	// connection's StreamBufferSize.
	BufferSize int
}

// Subscribe creates a server-side subscription.
func (c *Client) Subscribe(ctx context.Context, params SubscriptionParams) (*monitor.Subscription, error) {
	params = params.withDefaults()
	req := engine.CreateSubscriptionRequest{
		RequestedPublishingIntervalMs: float64(params.PublishingInterval) / float64(time.Millisecond),
		RequestedLifetimeCount:        params.LifetimeCount,
		RequestedMaxKeepAliveCount:    params.MaxKeepAliveCount,
		MaxNotificationsPerPublish:    params.MaxNotificationsPerPublish,
		PublishingEnabled:             true,
		Priority:                      params.Priority,
	}

	resp, err := c.roundTrip(ctx, errors.PhaseSubscribe, req)
	if err != nil {
		return nil, err
	}
	cs, ok := resp.(engine.CreateSubscriptionResponse)
	if !ok {
		return nil, errors.Internal(errors.PhaseSubscribe, "subscribe completed with mismatched response type")
	}

	id := cs.SubscriptionID
	revised := time.Duration(cs.RevisedPublishingIntervalMs * float64(time.Millisecond))
	sub := monitor.NewSubscription(id, revised, func(ctx context.Context) error {
		return c.deleteSubscription(ctx, id)
	})

	c.subMu.Lock()
	c.subs = append(c.subs, sub)
	c.subMu.Unlock()
	return sub, nil
}

func (c *Client) deleteSubscription(ctx context.Context, id uint32) error {
	c.router.UnregisterSubscription(id)
	resp, err := c.roundTrip(ctx, errors.PhaseSubscribe,
		engine.DeleteSubscriptionsRequest{SubscriptionIDs: []uint32{id}})
	if err != nil {
		return err
	}
	ds, ok := resp.(engine.DeleteSubscriptionsResponse)
	if !ok {
		return errors.Internal(errors.PhaseSubscribe, "delete completed with mismatched response type")
	}
	if len(ds.Results) == 1 && engine.IsBad(ds.Results[0]) {
		return errors.BadStatus(errors.PhaseSubscribe, ds.Results[0],
			ua.StatusCode(ds.Results[0]).Name())
	}

	c.subMu.Lock()
	for i, s := range c.subs {
		if s.ID() == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.subMu.Unlock()
	return nil
}

// NewMonitoredItem registers a data-change monitor on node within sub
// and returns its notification stream.
func (c *Client) NewMonitoredItem(ctx context.Context, sub *monitor.Subscription, node ua.NodeID, opts MonitorOptions) (*monitor.ItemStream, error) {
	if sub.State() != monitor.SubscriptionActive {
		return nil, errors.Cancelled(errors.PhaseSubscribe, "subscription "+sub.State().String())
	}
	if opts.AttributeID == 0 {
		opts.AttributeID = AttributeValue
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = 10
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = c.cfg.StreamBufferSize
	}

	req := engine.CreateMonitoredItemsRequest{
		SubscriptionID: sub.ID(),
		ItemsToCreate: []engine.MonitoredItemCreateRequest{{
			NodeID:             ua.EncodeNodeID(node),
			AttributeID:        opts.AttributeID,
			MonitoringMode:     engine.MonitoringModeReporting,
			SamplingIntervalMs: float64(opts.SamplingInterval) / float64(time.Millisecond),
			QueueSize:          opts.QueueSize,
			DiscardOldest:      opts.DiscardOldest,
		}},
	}

	resp, err := c.roundTrip(ctx, errors.PhaseSubscribe, req)
	if err != nil {
		return nil, err
	}
	cm, ok := resp.(engine.CreateMonitoredItemsResponse)
	if !ok {
		return nil, errors.Internal(errors.PhaseSubscribe, "monitor completed with mismatched response type")
	}
	if len(cm.Results) != 1 {
		return nil, errors.Internal(errors.PhaseSubscribe, "monitor result count does not match request")
	}
	result := cm.Results[0]
	if engine.IsBad(result.StatusCode) {
		return nil, errors.BadStatus(errors.PhaseSubscribe, result.StatusCode,
			ua.StatusCode(result.StatusCode).Name())
	}

	subID := sub.ID()
	itemID := result.MonitoredItemID
	stream := monitor.NewItemStream(subID, itemID, opts.BufferSize, func(ctx context.Context) error {
		return c.deleteMonitoredItem(ctx, subID, itemID, sub)
	}, nil)

	if err := sub.Attach(stream); err != nil {
		// The subscription died between the request and now; tear the
		// orphaned item down on the server.
		_ = c.deleteMonitoredItem(ctx, subID, itemID, nil)
		return nil, err
	}
	c.router.Register(stream)
	return stream, nil
}

func (c *Client) deleteMonitoredItem(ctx context.Context, subID, itemID uint32, sub *monitor.Subscription) error {
	c.router.Unregister(subID, itemID)
	if sub != nil {
		sub.Detach(itemID)
	}

	resp, err := c.roundTrip(ctx, errors.PhaseSubscribe, engine.DeleteMonitoredItemsRequest{
		SubscriptionID:   subID,
		MonitoredItemIDs: []uint32{itemID},
	})
	if err != nil {
		return err
	}
	dm, ok := resp.(engine.DeleteMonitoredItemsResponse)
	if !ok {
		return errors.Internal(errors.PhaseSubscribe, "delete completed with mismatched response type")
	}
	if len(dm.Results) == 1 && engine.IsBad(dm.Results[0]) {
		return errors.BadStatus(errors.PhaseSubscribe, dm.Results[0],
			ua.StatusCode(dm.Results[0]).Name())
	}
	return nil
}
