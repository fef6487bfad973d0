package driver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
)

// recentWindow bounds the ring of recently completed request ids kept to
// distinguish a duplicate completion from one for an id never issued.
const recentWindow = 256

// Result is the terminal outcome of one request: a response or an error,
// never both.
type Result struct {
	Response engine.Response
	Err      error
}

type slot struct {
	ch        chan Result
	abandoned bool
}

// Correlator matches engine-assigned request ids to the goroutines
// awaiting their completions. Every in-flight request owns exactly one
// slot; the slot's channel has capacity one so the completion callback
// never blocks, even if the awaiting goroutine already gave up.
type Correlator struct {
	mu      sync.Mutex
	pending map[uint32]*slot
	recent  [recentWindow]uint32
	recentN int
	closed  error

	metrics *Metrics
}

// NewCorrelator creates an empty correlator. Metrics may be nil.
func NewCorrelator(metrics *Metrics) *Correlator {
	return &Correlator{
		pending: make(map[uint32]*slot),
		metrics: metrics,
	}
}

// Register creates the completion slot for requestID. It must be called
// before the engine has any chance to deliver the completion, i.e. on the
// loop goroutine between SendRequest returning and the next iterate step.
func (c *Correlator) Register(requestID uint32) (<-chan Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return nil, c.closed
	}
	if _, exists := c.pending[requestID]; exists {
		return nil, errors.New(errors.PhaseRequest, errors.KindInternal).
			Detail("request id %d already in flight", requestID).
			Build()
	}
	s := &slot{ch: make(chan Result, 1)}
	c.pending[requestID] = s
	if c.metrics != nil {
		c.metrics.InFlight.Inc()
	}
	return s.ch, nil
}

// Complete routes the engine's response to the registered slot. The first
// completion for an id wins; anything after that, or a completion for an
// id that was never registered, is reported as a binding defect without
// disturbing other in-flight requests.
func (c *Correlator) Complete(requestID uint32, resp engine.Response) error {
	return c.deliver(requestID, Result{Response: resp})
}

// Fail completes requestID with an error instead of a response.
func (c *Correlator) Fail(requestID uint32, err error) error {
	return c.deliver(requestID, Result{Err: err})
}

func (c *Correlator) deliver(requestID uint32, r Result) error {
	c.mu.Lock()
	s, ok := c.pending[requestID]
	if !ok {
		var err error
		if c.wasRecentlyCompleted(requestID) {
			err = errors.DuplicateCompletion(requestID)
			if c.metrics != nil {
				c.metrics.DuplicateCompletions.Inc()
			}
		} else {
			err = errors.UnknownRequest(requestID)
			if c.metrics != nil {
				c.metrics.UnknownCompletions.Inc()
			}
		}
		c.mu.Unlock()
		Logger().Warn("stray completion",
			zap.Uint32("request_id", requestID),
			zap.Error(err))
		return err
	}
	delete(c.pending, requestID)
	c.remember(requestID)
	abandoned := s.abandoned
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.InFlight.Dec()
		if abandoned {
			c.metrics.AbandonedCompletions.Inc()
		}
	}
	if !abandoned {
		s.ch <- r
	}
	return nil
}

// Abandon marks requestID's slot so its eventual completion is discarded.
// The caller stopped waiting; the engine still owns the request and will
// complete it in its own time.
func (c *Correlator) Abandon(requestID uint32) {
	c.mu.Lock()
	if s, ok := c.pending[requestID]; ok {
		s.abandoned = true
	}
	c.mu.Unlock()
}

// Await blocks until the request completes or ctx ends. On context
// expiry the slot is abandoned and a cancellation error returned; the
// engine's late completion will be discarded when it arrives.
func (c *Correlator) Await(ctx context.Context, requestID uint32, ch <-chan Result) (engine.Response, error) {
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Response, nil
	case <-ctx.Done():
		c.Abandon(requestID)
		return nil, errors.New(errors.PhaseRequest, errors.KindCancelled).
			Cause(ctx.Err()).
			Detail("request %d abandoned", requestID).
			Build()
	}
}

// FailAll completes every pending request with err and rejects future
// registrations with the same error. Used at disconnect and on fatal
// engine errors; idempotent.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	if c.closed == nil {
		c.closed = err
	}
	pending := c.pending
	c.pending = make(map[uint32]*slot)
	if c.metrics != nil {
		abandoned := 0
		for _, s := range pending {
			if s.abandoned {
				abandoned++
			}
		}
		c.metrics.InFlight.Sub(float64(len(pending)))
		c.metrics.AbandonedCompletions.Add(float64(abandoned))
	}
	c.mu.Unlock()

	for _, s := range pending {
		if s.abandoned {
			continue
		}
		s.ch <- Result{Err: err}
	}
}

// Pending returns the number of in-flight requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remember(requestID uint32) {
	c.recent[c.recentN%recentWindow] = requestID
	c.recentN++
}

func (c *Correlator) wasRecentlyCompleted(requestID uint32) bool {
	n := c.recentN
	if n > recentWindow {
		n = recentWindow
	}
	for i := 0; i < n; i++ {
		if c.recent[i] == requestID {
			return true
		}
	}
	return false
}
