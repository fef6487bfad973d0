package enginetest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/ua"
)

var nextHandle atomic.Uintptr

func newHandle() uintptr {
	return nextHandle.Add(1)
}

// ClientOptions tunes the scripted client engine.
type ClientOptions struct {
	// BrowsePageSize caps references per browse result, simulating a
	// server-side continuation point. Zero means unlimited.
	BrowsePageSize int
}

type queuedCompletion struct {
	requestID uint32
	resp      engine.Response
	cb        engine.CompletionFunc
	duplicate bool
}

type monitoredItem struct {
	subscriptionID uint32
	itemID         uint32
	nodeKey        string
}

// ClientEngine is an in-memory engine.ClientEngine executing requests
// against a Space. Requests are evaluated at SendRequest time but their
// completions are delivered on the next Iterate, preserving the real
// engine's asynchrony.
type ClientEngine struct {
	space *Space
	opts  ClientOptions

	mu          sync.Mutex
	connected   bool
	nextRequest uint32
	completions []queuedCompletion
	notify      engine.NotificationFunc

	// subMu guards subscription routing so the space's write observer
	// can run while a request is being dispatched under mu.
	subMu         sync.Mutex
	notifyQueue   []engine.Notification
	nextSubID     uint32
	nextItemID    uint32
	subs          map[uint32]map[uint32]*monitoredItem
	itemsByKey    map[string][]*monitoredItem
	nextCP        int
	continuations map[string][]engine.RawReferenceDescription

	iterateStatus uint32
	sendStatus    uint32
	duplicateNext bool

	iterations atomic.Int64
	handle     uintptr
	released   atomic.Bool
}

var _ engine.ClientEngine = (*ClientEngine)(nil)

// NewClientEngine creates a disconnected client engine over space.
func NewClientEngine(space *Space, opts ClientOptions) *ClientEngine {
	c := &ClientEngine{
		space:         space,
		opts:          opts,
		subs:          make(map[uint32]map[uint32]*monitoredItem),
		itemsByKey:    make(map[string][]*monitoredItem),
		continuations: make(map[string][]engine.RawReferenceDescription),
		handle:        newHandle(),
	}
	space.Observe(c.onWrite)
	return c
}

// Connect establishes the scripted session.
func (c *ClientEngine) Connect(cfg engine.ConnectConfig) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.EndpointURL == "" {
		return uint32(ua.StatusBadConnectionRejected)
	}
	if len(cfg.PrivateKey) > 0 && cfg.PrivateKeyPassword != nil {
		if _, err := cfg.PrivateKeyPassword(); err != nil {
			return uint32(ua.StatusBadSecurityChecksFailed)
		}
	}
	c.connected = true
	return engine.StatusGood
}

// Disconnect closes the scripted session.
func (c *ClientEngine) Disconnect() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return uint32(ua.StatusBadConnectionClosed)
	}
	c.connected = false
	return engine.StatusGood
}

// Handle returns the fake engine pointer.
func (c *ClientEngine) Handle() uintptr { return c.handle }

// ReleaseHandle marks the engine freed. Released reports it, for
// shutdown-ordering assertions.
func (c *ClientEngine) ReleaseHandle() { c.released.Store(true) }

// Released reports whether ReleaseHandle has run.
func (c *ClientEngine) Released() bool { return c.released.Load() }

// Iterations returns how many times Iterate has run.
func (c *ClientEngine) Iterations() int64 { return c.iterations.Load() }

// OnNotification registers the notification sink.
func (c *ClientEngine) OnNotification(fn engine.NotificationFunc) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// FailIterate makes every subsequent Iterate return status, simulating
// a fatal engine error.
func (c *ClientEngine) FailIterate(status uint32) {
	c.mu.Lock()
	c.iterateStatus = status
	c.mu.Unlock()
}

// FailNextSend makes the next SendRequest return status without
// dispatching.
func (c *ClientEngine) FailNextSend(status uint32) {
	c.mu.Lock()
	c.sendStatus = status
	c.mu.Unlock()
}

// DuplicateNextCompletion delivers the next queued completion twice,
// simulating a defective engine callback.
func (c *ClientEngine) DuplicateNextCompletion() {
	c.mu.Lock()
	c.duplicateNext = true
	c.mu.Unlock()
}

// SendRequest evaluates the request against the space and queues its
// completion for the next Iterate.
func (c *ClientEngine) SendRequest(req engine.Request, cb engine.CompletionFunc) (uint32, uint32) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return 0, uint32(ua.StatusBadServerNotConnected)
	}
	if c.sendStatus != 0 {
		status := c.sendStatus
		c.sendStatus = 0
		c.mu.Unlock()
		return 0, status
	}
	c.nextRequest++
	id := c.nextRequest
	duplicate := c.duplicateNext
	c.duplicateNext = false
	c.mu.Unlock()

	// Evaluated outside mu: a write triggers the space's observers,
	// which queue notifications under subMu.
	resp := c.execute(req)

	c.mu.Lock()
	c.completions = append(c.completions, queuedCompletion{
		requestID: id, resp: resp, cb: cb, duplicate: duplicate,
	})
	c.mu.Unlock()
	return id, engine.StatusGood
}

// Iterate delivers queued completions, then queued notifications, in
// order.
func (c *ClientEngine) Iterate(timeoutMs uint32) uint32 {
	c.iterations.Add(1)

	c.mu.Lock()
	if engine.IsBad(c.iterateStatus) {
		status := c.iterateStatus
		c.mu.Unlock()
		return status
	}
	completions := c.completions
	c.completions = nil
	notify := c.notify
	c.mu.Unlock()

	c.subMu.Lock()
	notifications := c.notifyQueue
	c.notifyQueue = nil
	c.subMu.Unlock()

	for _, qc := range completions {
		qc.cb(qc.requestID, qc.resp)
		if qc.duplicate {
			qc.cb(qc.requestID, qc.resp)
		}
	}
	if notify != nil {
		for _, n := range notifications {
			notify(n)
		}
	}
	return engine.StatusGood
}

// onWrite fans a value change out to monitored items watching the node.
func (c *ClientEngine) onWrite(id engine.RawNodeID, value engine.RawDataValue) {
	k := keyOf(id)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, item := range c.itemsByKey[k] {
		c.notifyQueue = append(c.notifyQueue, engine.Notification{
			SubscriptionID:  item.subscriptionID,
			MonitoredItemID: item.itemID,
			Value:           value,
		})
	}
}

func (c *ClientEngine) execute(req engine.Request) engine.Response {
	switch r := req.(type) {
	case engine.ReadRequest:
		return c.executeRead(r)
	case engine.WriteRequest:
		return c.executeWrite(r)
	case engine.CallRequest:
		return c.executeCall(r)
	case engine.BrowseRequest:
		return c.executeBrowse(r)
	case engine.BrowseNextRequest:
		return c.executeBrowseNext(r)
	case engine.TranslateBrowsePathsRequest:
		return c.executeTranslate(r)
	case engine.CreateSubscriptionRequest:
		return c.executeCreateSubscription(r)
	case engine.DeleteSubscriptionsRequest:
		return c.executeDeleteSubscriptions(r)
	case engine.CreateMonitoredItemsRequest:
		return c.executeCreateItems(r)
	case engine.DeleteMonitoredItemsRequest:
		return c.executeDeleteItems(r)
	default:
		return engine.ReadResponse{Service: uint32(ua.StatusBadServiceUnsupported)}
	}
}

func (c *ClientEngine) executeRead(r engine.ReadRequest) engine.Response {
	results := make([]engine.RawDataValue, len(r.NodesToRead))
	for i, rv := range r.NodesToRead {
		results[i] = c.space.ReadAttribute(rv)
	}
	return engine.ReadResponse{Service: engine.StatusGood, Results: results}
}

func (c *ClientEngine) executeWrite(r engine.WriteRequest) engine.Response {
	results := make([]uint32, len(r.NodesToWrite))
	for i, wv := range r.NodesToWrite {
		if wv.AttributeID != engine.AttributeValue {
			results[i] = uint32(ua.StatusBadAttributeIDInvalid)
			continue
		}
		results[i] = c.space.WriteValue(wv.NodeID, wv.Value)
	}
	return engine.WriteResponse{Service: engine.StatusGood, Results: results}
}

func (c *ClientEngine) executeCall(r engine.CallRequest) engine.Response {
	results := make([]engine.CallMethodResult, len(r.MethodsToCall))
	for i, mc := range r.MethodsToCall {
		results[i] = c.space.Call(mc)
	}
	return engine.CallResponse{Service: engine.StatusGood, Results: results}
}

func (c *ClientEngine) executeBrowse(r engine.BrowseRequest) engine.Response {
	results := make([]engine.BrowseResult, len(r.NodesToBrowse))
	for i, desc := range r.NodesToBrowse {
		refs, status := c.space.Browse(desc)
		if engine.IsBad(status) {
			results[i] = engine.BrowseResult{StatusCode: status}
			continue
		}
		c.subMu.Lock()
		results[i] = c.paginate(refs, int(r.RequestedMaxReferencesPerNode))
		c.subMu.Unlock()
	}
	return engine.BrowseResponse{Service: engine.StatusGood, Results: results}
}

// paginate truncates refs to the effective page size, parking the rest
// behind a continuation token. A full page always yields a token, even
// when nothing remains: the server cannot know the result is complete
// until the client asks again. Caller holds subMu.
func (c *ClientEngine) paginate(refs []engine.RawReferenceDescription, requestedMax int) engine.BrowseResult {
	page := len(refs)
	if requestedMax > 0 && requestedMax < page {
		page = requestedMax
	}
	if c.opts.BrowsePageSize > 0 && c.opts.BrowsePageSize < page {
		page = c.opts.BrowsePageSize
	}

	out := engine.BrowseResult{
		StatusCode: engine.StatusGood,
		References: refs[:page],
	}
	if page < len(refs) || (page > 0 && page == c.opts.BrowsePageSize) {
		c.nextCP++
		token := fmt.Sprintf("cp-%d", c.nextCP)
		c.continuations[token] = refs[page:]
		out.ContinuationPoint = []byte(token)
	}
	return out
}

func (c *ClientEngine) executeBrowseNext(r engine.BrowseNextRequest) engine.Response {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	results := make([]engine.BrowseResult, len(r.ContinuationPoints))
	for i, cp := range r.ContinuationPoints {
		rest, ok := c.continuations[string(cp)]
		if !ok {
			results[i] = engine.BrowseResult{StatusCode: uint32(ua.StatusBadContinuationPointInvalid)}
			continue
		}
		delete(c.continuations, string(cp))
		if r.ReleaseContinuationPoints {
			results[i] = engine.BrowseResult{StatusCode: engine.StatusGood}
			continue
		}
		results[i] = c.paginate(rest, 0)
	}
	return engine.BrowseNextResponse{Service: engine.StatusGood, Results: results}
}

func (c *ClientEngine) executeTranslate(r engine.TranslateBrowsePathsRequest) engine.Response {
	results := make([]engine.BrowsePathResult, len(r.BrowsePaths))
	for i, p := range r.BrowsePaths {
		results[i] = c.space.Translate(p)
	}
	return engine.TranslateBrowsePathsResponse{Service: engine.StatusGood, Results: results}
}

func (c *ClientEngine) executeCreateSubscription(r engine.CreateSubscriptionRequest) engine.Response {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = make(map[uint32]*monitoredItem)
	interval := r.RequestedPublishingIntervalMs
	if interval <= 0 {
		interval = 100
	}
	return engine.CreateSubscriptionResponse{
		Service:                     engine.StatusGood,
		SubscriptionID:              id,
		RevisedPublishingIntervalMs: interval,
		RevisedLifetimeCount:        r.RequestedLifetimeCount,
		RevisedMaxKeepAliveCount:    r.RequestedMaxKeepAliveCount,
	}
}

func (c *ClientEngine) executeDeleteSubscriptions(r engine.DeleteSubscriptionsRequest) engine.Response {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	results := make([]uint32, len(r.SubscriptionIDs))
	for i, id := range r.SubscriptionIDs {
		items, ok := c.subs[id]
		if !ok {
			results[i] = uint32(ua.StatusBadSubscriptionIDInvalid)
			continue
		}
		for itemID := range items {
			c.removeItemLocked(id, itemID)
		}
		delete(c.subs, id)
		results[i] = engine.StatusGood
	}
	return engine.DeleteSubscriptionsResponse{Service: engine.StatusGood, Results: results}
}

func (c *ClientEngine) executeCreateItems(r engine.CreateMonitoredItemsRequest) engine.Response {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	items, ok := c.subs[r.SubscriptionID]
	if !ok {
		return engine.CreateMonitoredItemsResponse{Service: uint32(ua.StatusBadSubscriptionIDInvalid)}
	}
	results := make([]engine.MonitoredItemCreateResult, len(r.ItemsToCreate))
	for i, ic := range r.ItemsToCreate {
		if !c.space.Has(ic.NodeID) {
			results[i] = engine.MonitoredItemCreateResult{StatusCode: uint32(ua.StatusBadNodeIDUnknown)}
			continue
		}
		c.nextItemID++
		item := &monitoredItem{
			subscriptionID: r.SubscriptionID,
			itemID:         c.nextItemID,
			nodeKey:        keyOf(ic.NodeID),
		}
		items[item.itemID] = item
		c.itemsByKey[item.nodeKey] = append(c.itemsByKey[item.nodeKey], item)
		results[i] = engine.MonitoredItemCreateResult{
			StatusCode:                engine.StatusGood,
			MonitoredItemID:           item.itemID,
			RevisedSamplingIntervalMs: ic.SamplingIntervalMs,
			RevisedQueueSize:          ic.QueueSize,
		}
	}
	return engine.CreateMonitoredItemsResponse{Service: engine.StatusGood, Results: results}
}

func (c *ClientEngine) executeDeleteItems(r engine.DeleteMonitoredItemsRequest) engine.Response {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	items, ok := c.subs[r.SubscriptionID]
	if !ok {
		return engine.DeleteMonitoredItemsResponse{Service: uint32(ua.StatusBadSubscriptionIDInvalid)}
	}
	results := make([]uint32, len(r.MonitoredItemIDs))
	for i, itemID := range r.MonitoredItemIDs {
		if _, ok := items[itemID]; !ok {
			results[i] = uint32(ua.StatusBadMonitoredItemIDInvalid)
			continue
		}
		c.removeItemLocked(r.SubscriptionID, itemID)
		results[i] = engine.StatusGood
	}
	return engine.DeleteMonitoredItemsResponse{Service: engine.StatusGood, Results: results}
}

// removeItemLocked unlinks one monitored item. Caller holds subMu.
func (c *ClientEngine) removeItemLocked(subID, itemID uint32) {
	items := c.subs[subID]
	item, ok := items[itemID]
	if !ok {
		return
	}
	delete(items, itemID)
	watchers := c.itemsByKey[item.nodeKey]
	for i, w := range watchers {
		if w.itemID == itemID {
			c.itemsByKey[item.nodeKey] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(c.itemsByKey[item.nodeKey]) == 0 {
		delete(c.itemsByKey, item.nodeKey)
	}
}
