package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// State is the loop's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Iterator is the engine's single-threaded advance step. Both client and
// server engines satisfy it.
type Iterator interface {
	Iterate(timeoutMs uint32) uint32
}

// Config tunes the loop.
type Config struct {
	// CycleTime bounds how long the loop sleeps between iterate steps,
	// and with it the latency of cancellation and of queued submissions.
	// Defaults to 50ms.
	CycleTime time.Duration
	// QueueSize is the capacity of the submission queue. Defaults to 128.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.CycleTime <= 0 {
		c.CycleTime = 50 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	return c
}

// Loop drives one engine instance. Exactly one Loop exists per
// connection or server; its goroutine is the only caller of the engine's
// iterate step and the only context in which engine callbacks run.
type Loop struct {
	eng   Iterator
	cfg   Config
	state atomic.Int32

	// submitMu fences Submit against the final drain: the loop takes the
	// write side after the stop signal, so no send can land once the
	// queue has been swept for the last time.
	submitMu sync.RWMutex
	submit   chan func()
	stopCh   chan struct{}
	done     chan struct{}

	stopOnce sync.Once

	fatalMu  sync.Mutex
	onFatal  []func(error)
	fatalErr error
}

// NewLoop creates an idle loop around the engine's iterate step.
func NewLoop(eng Iterator, cfg Config) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		eng:    eng,
		cfg:    cfg,
		submit: make(chan func(), cfg.QueueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// OnFatal registers a hook invoked once when the engine reports a fatal
// error. Hooks run on the loop goroutine, before the loop drains and
// stops. Register before Start.
func (l *Loop) OnFatal(fn func(error)) {
	l.fatalMu.Lock()
	defer l.fatalMu.Unlock()
	l.onFatal = append(l.onFatal, fn)
}

// Err returns the fatal error that stopped the loop, if any.
func (l *Loop) Err() error {
	l.fatalMu.Lock()
	defer l.fatalMu.Unlock()
	return l.fatalErr
}

// Start transitions Idle to Running and spawns the loop goroutine.
func (l *Loop) Start() error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errors.Internal(errors.PhaseSession,
			"loop started in state "+l.State().String())
	}
	go l.run()
	return nil
}

// Submit enqueues fn for execution on the loop goroutine. It fails with
// a cancellation error once the loop is stopping or stopped.
func (l *Loop) Submit(fn func()) error {
	l.submitMu.RLock()
	defer l.submitMu.RUnlock()
	if s := l.State(); s != StateRunning {
		return errors.Cancelled(errors.PhaseRequest, "event loop is "+s.String())
	}
	select {
	case l.submit <- fn:
		return nil
	case <-l.stopCh:
		return errors.Cancelled(errors.PhaseRequest, "event loop is stopping")
	}
}

// Stop transitions to Stopping and waits until the current iterate step
// has finished and every queued submission (including handle releases)
// has drained. It is idempotent and safe to call from any goroutine
// except the loop's own.
func (l *Loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() {
		// Idle loops stop immediately; running ones are signalled.
		if l.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
			close(l.stopCh)
			close(l.done)
			return
		}
		l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		close(l.stopCh)
	})

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.PhaseShutdown, errors.KindTimeout, ctx.Err(),
			"waiting for event loop to stop")
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run() {
	log := Logger()
	ticker := time.NewTicker(l.cfg.CycleTime)
	defer ticker.Stop()
	defer close(l.done)
	defer l.state.Store(int32(StateStopped))

	for {
		select {
		case <-l.stopCh:
			l.drain()
			return

		case fn := <-l.submit:
			fn()

		case <-ticker.C:
			// Zero timeout: never block inside the engine so queued
			// submissions and cancellation stay responsive.
			status := l.eng.Iterate(0)
			if engine.IsBad(status) {
				err := errors.New(errors.PhaseSession, errors.KindDisconnected).
					Code(status).
					Detail("engine iterate failed: %s", ua.StatusCode(status).Name()).
					Build()
				log.Error("fatal engine error, stopping event loop",
					zap.String("status", ua.StatusCode(status).Name()))
				l.fail(err)
				l.drain()
				return
			}
		}
	}
}

// drain runs queued submissions so that dispatched releases and
// completions are not lost, then leaves the loop. The final sweep runs
// under the submit write lock: a submitter that read Running just
// before the stop signal has its send completed and executed here
// rather than dropped.
func (l *Loop) drain() {
	l.state.Store(int32(StateStopping))
	l.sweep()
	l.submitMu.Lock()
	defer l.submitMu.Unlock()
	l.sweep()
}

func (l *Loop) sweep() {
	for {
		select {
		case fn := <-l.submit:
			fn()
		default:
			return
		}
	}
}

func (l *Loop) fail(err error) {
	l.fatalMu.Lock()
	if l.fatalErr == nil {
		l.fatalErr = err
	}
	hooks := append([]func(error){}, l.onFatal...)
	l.fatalMu.Unlock()

	l.state.Store(int32(StateStopping))
	for _, fn := range hooks {
		fn(err)
	}
}
