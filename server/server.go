package server

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
	"github.com/opcfoundry/opcua-runtime/pki"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// Config carries the server's construction-time settings.
type Config struct {
	Certificate *pki.Certificate
	PrivateKey  *pki.PrivateKey

	// AccessControl guards session activation and per-node operations.
	// Nil means allow-all.
	AccessControl AccessControl

	// CycleTime bounds the event loop's sleep between engine steps.
	CycleTime time.Duration
	// QueueSize caps closures queued onto the loop goroutine.
	QueueSize int

	// Arena tracks engine handle ownership; a fresh one is created when
	// nil.
	Arena *arena.Arena
	// Metrics registers the server collectors when set.
	Metrics prometheus.Registerer
	// Logger replaces the no-op default.
	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.AccessControl == nil {
		c.AccessControl = AllowAll{}
	}
	if c.CycleTime <= 0 {
		c.CycleTime = 50 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	return c
}

// Server manages an address space over a server engine and drives it
// with its own event loop while running.
type Server struct {
	cfg    Config
	eng    engine.ServerEngine
	loop   *driver.Loop
	arena  *arena.Arena
	handle *arena.Handle
	log    *zap.Logger

	mu      sync.Mutex
	started bool

	closeOnce sync.Once
	closeErr  error
}

// New wraps eng. The address space may be populated before Run; node
// operations are routed through the loop goroutine once it is running.
func New(eng engine.ServerEngine, cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	ar := cfg.Arena
	if ar == nil {
		ar = arena.New()
	}
	handle, err := ar.Acquire(arena.KindServer, eng.Handle(), eng.ReleaseHandle)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		eng:    eng,
		arena:  ar,
		handle: handle,
		log:    log,
	}
	s.loop = driver.NewLoop(eng, driver.Config{
		CycleTime: cfg.CycleTime,
		QueueSize: cfg.QueueSize,
	})
	eng.SetAccessControl(s.accessControlFuncs())
	if cfg.Metrics != nil {
		registerStatistics(cfg.Metrics, eng)
	}
	return s, nil
}

// Arena returns the handle arena tracking this server.
func (s *Server) Arena() *arena.Arena { return s.arena }

// Run starts the engine and drives it until ctx is cancelled or the
// engine fails fatally, then shuts down and releases the handle. It
// can run at most once.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Internal(errors.PhaseServer, "server already run")
	}
	s.started = true
	s.mu.Unlock()

	if status := s.eng.Startup(); engine.IsBad(status) {
		_ = s.handle.Release()
		return errors.BadStatus(errors.PhaseServer, status, ua.StatusCode(status).Name())
	}
	if err := s.loop.Start(); err != nil {
		s.eng.Shutdown()
		_ = s.handle.Release()
		return err
	}
	s.log.Info("server running")

	var runErr error
	select {
	case <-ctx.Done():
	case <-s.loop.Done():
		runErr = s.loop.Err()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.shutdown(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	s.log.Info("server stopped", zap.Error(runErr))
	return runErr
}

// Close stops the server outside Run, for instances that never ran or
// whose Run already returned. Idempotent.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.shutdown(ctx)
}

func (s *Server) shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var firstErr error
		if err := s.loop.Stop(ctx); err != nil {
			firstErr = err
		}
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			if status := s.eng.Shutdown(); engine.IsBad(status) && firstErr == nil {
				firstErr = errors.BadStatus(errors.PhaseShutdown, status,
					ua.StatusCode(status).Name())
			}
		}
		if err := s.handle.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.closeErr = firstErr
	})
	return s.closeErr
}

// Statistics returns a point-in-time snapshot of the engine counters.
// Safe to call concurrently with the running server.
func (s *Server) Statistics() Statistics {
	raw := s.eng.Statistics()
	return Statistics{
		CurrentSessions:         raw.CurrentSessions,
		CumulatedSessions:       raw.CumulatedSessions,
		RejectedSessions:        raw.RejectedSessions,
		SessionTimeouts:         raw.SessionTimeouts,
		CurrentSecureChannels:   raw.CurrentSecureChannels,
		CumulatedSecureChannels: raw.CumulatedSecureChannels,
	}
}

// Statistics is the server's session and channel accounting.
type Statistics struct {
	CurrentSessions         uint32
	CumulatedSessions       uint32
	RejectedSessions        uint32
	SessionTimeouts         uint32
	CurrentSecureChannels   uint32
	CumulatedSecureChannels uint32
}

// exec runs fn with the single-writer rule intact: directly while the
// loop is idle (construction phase), through the loop goroutine while
// it runs.
func (s *Server) exec(fn func() uint32) (uint32, error) {
	if s.loop.State() == driver.StateIdle {
		return fn(), nil
	}
	result := make(chan uint32, 1)
	if err := s.loop.Submit(func() { result <- fn() }); err != nil {
		return 0, err
	}
	select {
	case status := <-result:
		return status, nil
	case <-s.loop.Done():
		// Drained submissions still deliver; a closed loop without a
		// result means the closure was never queued.
		select {
		case status := <-result:
			return status, nil
		default:
		}
		return 0, errors.Cancelled(errors.PhaseServer, "server stopped")
	}
}

func (s *Server) execChecked(phase errors.Phase, fn func() uint32) error {
	status, err := s.exec(fn)
	if err != nil {
		return err
	}
	if engine.IsBad(status) {
		return errors.BadStatus(phase, status, ua.StatusCode(status).Name())
	}
	return nil
}
