package monitor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/ua"
)

type streamKey struct {
	subscriptionID  uint32
	monitoredItemID uint32
}

// Router fans the engine's single notification callback out to item
// streams. Dispatch runs on the driver goroutine and never blocks;
// registration may happen from any goroutine.
type Router struct {
	mu      sync.RWMutex
	streams map[streamKey]*ItemStream
	metrics *Metrics
}

// NewRouter creates an empty router. Metrics may be nil.
func NewRouter(metrics *Metrics) *Router {
	return &Router{
		streams: make(map[streamKey]*ItemStream),
		metrics: metrics,
	}
}

// Register routes future notifications for the stream's ids to it.
func (r *Router) Register(s *ItemStream) {
	k := streamKey{s.SubscriptionID(), s.MonitoredItemID()}
	r.mu.Lock()
	r.streams[k] = s
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.ActiveStreams.Inc()
	}
}

// Unregister stops routing to the stream. It does not end the stream.
func (r *Router) Unregister(subscriptionID, monitoredItemID uint32) {
	k := streamKey{subscriptionID, monitoredItemID}
	r.mu.Lock()
	_, had := r.streams[k]
	delete(r.streams, k)
	r.mu.Unlock()
	if had && r.metrics != nil {
		r.metrics.ActiveStreams.Dec()
	}
}

// UnregisterSubscription stops routing to every stream of one
// subscription. It does not end the streams.
func (r *Router) UnregisterSubscription(subscriptionID uint32) {
	r.mu.Lock()
	removed := 0
	for k := range r.streams {
		if k.subscriptionID == subscriptionID {
			delete(r.streams, k)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 && r.metrics != nil {
		r.metrics.ActiveStreams.Sub(float64(removed))
	}
}

// Dispatch decodes one engine notification and publishes it to the
// matching stream. Decode failures and notifications for unknown ids
// are logged and dropped; the loop continues.
func (r *Router) Dispatch(n engine.Notification) {
	k := streamKey{n.SubscriptionID, n.MonitoredItemID}
	r.mu.RLock()
	s, ok := r.streams[k]
	r.mu.RUnlock()
	if !ok {
		if r.metrics != nil {
			r.metrics.Unrouted.Inc()
		}
		Logger().Debug("notification for unknown monitored item",
			zap.Uint32("subscription_id", n.SubscriptionID),
			zap.Uint32("monitored_item_id", n.MonitoredItemID))
		return
	}

	var u Update
	if len(n.EventFields) > 0 {
		fields := make([]ua.Variant, 0, len(n.EventFields))
		for i, raw := range n.EventFields {
			v, err := ua.DecodeVariant(raw)
			if err != nil {
				Logger().Warn("dropping undecodable event notification",
					zap.Uint32("monitored_item_id", n.MonitoredItemID),
					zap.Int("field", i),
					zap.Error(err))
				return
			}
			fields = append(fields, v)
		}
		u.EventFields = fields
	} else {
		dv, err := ua.DecodeDataValue(n.Value)
		if err != nil {
			Logger().Warn("dropping undecodable data change notification",
				zap.Uint32("monitored_item_id", n.MonitoredItemID),
				zap.Error(err))
			return
		}
		u.Value = dv
	}
	s.Publish(u)
}

// EndAll terminates every registered stream with err and clears the
// routing table. Used at disconnect and on fatal engine errors.
func (r *Router) EndAll(err error) {
	r.mu.Lock()
	streams := make([]*ItemStream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	n := len(r.streams)
	r.streams = make(map[streamKey]*ItemStream)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveStreams.Sub(float64(n))
	}
	for _, s := range streams {
		s.End(err)
	}
}
