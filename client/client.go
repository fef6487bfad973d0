package client

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opcfoundry/opcua-runtime/arena"
	"github.com/opcfoundry/opcua-runtime/driver"
	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/monitor"
	"github.com/opcfoundry/opcua-runtime/pki"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// Config carries everything needed to establish and run a connection.
type Config struct {
	EndpointURL       string
	SecurityMode      engine.SecurityMode
	SecurityPolicyURI string
	Identity          engine.IdentityToken
	Certificate       *pki.Certificate
	PrivateKey        *pki.PrivateKey

	// CycleTime bounds the event loop's sleep between engine steps.
	CycleTime time.Duration
	// RequestQueueSize caps closures queued onto the loop goroutine.
	RequestQueueSize int
	// StreamBufferSize is the default per-item notification buffer.
	StreamBufferSize int

	// Arena tracks engine handle ownership. A fresh one is created when
	// nil; tests pass their own to observe release ordering.
	Arena *arena.Arena
	// Metrics registers driver and monitor collectors when set.
	Metrics prometheus.Registerer
	// Logger replaces the no-op default for this connection's packages.
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.SecurityMode == 0 {
		c.SecurityMode = engine.SecurityModeNone
	}
	if c.CycleTime <= 0 {
		c.CycleTime = 50 * time.Millisecond
	}
	if c.RequestQueueSize <= 0 {
		c.RequestQueueSize = 128
	}
	if c.StreamBufferSize <= 0 {
		c.StreamBufferSize = 64
	}
	return c
}

// Client is a connected session. All operations are safe for concurrent
// use; they suspend the calling goroutine without ever blocking the
// event loop.
type Client struct {
	cfg    Config
	eng    engine.ClientEngine
	loop   *driver.Loop
	corr   *driver.Correlator
	router *monitor.Router
	arena  *arena.Arena
	handle *arena.Handle
	log    *zap.Logger

	subMu sync.Mutex
	subs  []*monitor.Subscription

	closeOnce sync.Once
	closeErr  error
}

// Connect establishes the session over eng and starts the event loop.
// On failure the engine handle is released before returning.
func Connect(ctx context.Context, eng engine.ClientEngine, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.EndpointURL == "" {
		return nil, errors.InvalidData(errors.PhaseSession, nil, "endpoint URL is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseSession, errors.KindCancelled, err, "connect")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ar := cfg.Arena
	if ar == nil {
		ar = arena.New()
	}
	handle, err := ar.Acquire(arena.KindClient, eng.Handle(), eng.ReleaseHandle)
	if err != nil {
		return nil, err
	}

	connectCfg := engine.ConnectConfig{
		EndpointURL:       cfg.EndpointURL,
		SecurityMode:      cfg.SecurityMode,
		SecurityPolicyURI: cfg.SecurityPolicyURI,
		Identity:          cfg.Identity,
	}
	if cfg.Certificate != nil {
		connectCfg.Certificate = cfg.Certificate.DER()
	}
	if cfg.PrivateKey != nil {
		der, err := cfg.PrivateKey.DER()
		if err != nil {
			_ = handle.Release()
			return nil, err
		}
		connectCfg.PrivateKey = der
		if pw := cfg.PrivateKey.Password(); pw != nil {
			connectCfg.PrivateKeyPassword = pw
		}
	}

	if status := eng.Connect(connectCfg); engine.IsBad(status) {
		_ = handle.Release()
		return nil, errors.BadStatus(errors.PhaseSession, status, ua.StatusCode(status).Name())
	}

	var driverMetrics *driver.Metrics
	var monitorMetrics *monitor.Metrics
	if cfg.Metrics != nil {
		driverMetrics = driver.NewMetrics(cfg.Metrics)
		monitorMetrics = monitor.NewMetrics(cfg.Metrics)
	}

	c := &Client{
		cfg:    cfg,
		eng:    eng,
		corr:   driver.NewCorrelator(driverMetrics),
		router: monitor.NewRouter(monitorMetrics),
		arena:  ar,
		handle: handle,
		log:    log,
	}
	c.loop = driver.NewLoop(eng, driver.Config{
		CycleTime: cfg.CycleTime,
		QueueSize: cfg.RequestQueueSize,
	})
	c.loop.OnFatal(c.onFatal)
	eng.OnNotification(c.router.Dispatch)

	if err := c.loop.Start(); err != nil {
		_ = handle.Release()
		return nil, err
	}
	log.Info("session established", zap.String("endpoint", cfg.EndpointURL))
	return c, nil
}

// Arena returns the handle arena tracking this connection.
func (c *Client) Arena() *arena.Arena { return c.arena }

// onFatal runs on the loop goroutine when the engine reports a fatal
// iterate status.
func (c *Client) onFatal(err error) {
	c.log.Error("connection lost", zap.Error(err))
	c.corr.FailAll(err)
	c.endSubscriptions(err)
}

func (c *Client) endSubscriptions(err error) {
	c.subMu.Lock()
	subs := c.subs
	c.subs = nil
	c.subMu.Unlock()
	for _, s := range subs {
		s.End(err)
	}
	c.router.EndAll(err)
}

// complete is the engine's completion callback.
func (c *Client) complete(requestID uint32, resp engine.Response) {
	if err := c.corr.Complete(requestID, resp); err != nil {
		c.log.Error("completion bookkeeping failure", zap.Error(err))
	}
}

// roundTrip dispatches req on the loop goroutine and awaits its
// completion. The registration happens in the same closure as the
// dispatch, so the completion cannot arrive first.
func (c *Client) roundTrip(ctx context.Context, phase errors.Phase, req engine.Request) (engine.Response, error) {
	type dispatched struct {
		ch  <-chan driver.Result
		id  uint32
		err error
	}
	sent := make(chan dispatched, 1)

	err := c.loop.Submit(func() {
		id, status := c.eng.SendRequest(req, c.complete)
		if engine.IsBad(status) {
			sent <- dispatched{err: errors.BadStatus(phase, status, ua.StatusCode(status).Name())}
			return
		}
		ch, err := c.corr.Register(id)
		sent <- dispatched{ch: ch, id: id, err: err}
	})
	if err != nil {
		return nil, err
	}

	var d dispatched
	select {
	case d = <-sent:
	case <-ctx.Done():
		return nil, errors.Wrap(phase, errors.KindCancelled, ctx.Err(), "request dispatch")
	case <-c.loop.Done():
		if err := c.loop.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Cancelled(phase, "event loop stopped")
	}
	if d.err != nil {
		return nil, d.err
	}

	resp, err := c.corr.Await(ctx, d.id, d.ch)
	if err != nil {
		return nil, err
	}
	if status := resp.ServiceResult(); engine.IsBad(status) {
		return nil, errors.BadStatus(phase, status, ua.StatusCode(status).Name())
	}
	return resp, nil
}

// Disconnect closes the session gracefully: the loop is stopped, every
// pending request fails with a cancellation error, streams end, the
// server is notified and the engine handle is released last.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.shutdown(ctx, true)
}

// Close tears the connection down without notifying the server. Safe to
// call after Disconnect; the first teardown wins.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.shutdown(ctx, false)
}

func (c *Client) shutdown(ctx context.Context, graceful bool) error {
	c.closeOnce.Do(func() {
		var firstErr error
		if err := c.loop.Stop(ctx); err != nil {
			firstErr = err
		}
		cause := errors.Cancelled(errors.PhaseShutdown, "connection closed")
		c.corr.FailAll(cause)
		c.endSubscriptions(cause)

		// The loop is stopped, so the engine is single-threaded again
		// and may be called directly.
		if graceful {
			if status := c.eng.Disconnect(); engine.IsBad(status) && firstErr == nil {
				firstErr = errors.BadStatus(errors.PhaseShutdown, status,
					ua.StatusCode(status).Name())
			}
		}
		if err := c.handle.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.closeErr = firstErr
		c.log.Info("session closed", zap.Bool("graceful", graceful))
	})
	return c.closeErr
}
