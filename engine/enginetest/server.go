package enginetest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// ServerEngine is an in-memory engine.ServerEngine over a Space.
type ServerEngine struct {
	space *Space

	mu      sync.Mutex
	running bool
	ac      engine.AccessControlFuncs
	stats   engine.ServerStatistics

	nextSession   uint32
	iterateStatus uint32

	iterations atomic.Int64
	handle     uintptr
	released   atomic.Bool
}

var _ engine.ServerEngine = (*ServerEngine)(nil)

// NewServerEngine creates a stopped server engine over space.
func NewServerEngine(space *Space) *ServerEngine {
	return &ServerEngine{space: space, handle: newHandle()}
}

// Space returns the server's address space, for test seeding and
// loopback clients.
func (s *ServerEngine) Space() *Space { return s.space }

func (s *ServerEngine) Startup() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return uint32(ua.StatusBadInvalidArgument)
	}
	s.running = true
	return engine.StatusGood
}

func (s *ServerEngine) Iterate(timeoutMs uint32) uint32 {
	s.iterations.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if engine.IsBad(s.iterateStatus) {
		return s.iterateStatus
	}
	if !s.running {
		return uint32(ua.StatusBadServerHalted)
	}
	return engine.StatusGood
}

func (s *ServerEngine) Shutdown() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return uint32(ua.StatusBadServerHalted)
	}
	s.running = false
	return engine.StatusGood
}

// FailIterate makes every subsequent Iterate return status.
func (s *ServerEngine) FailIterate(status uint32) {
	s.mu.Lock()
	s.iterateStatus = status
	s.mu.Unlock()
}

// Iterations returns how many times Iterate has run.
func (s *ServerEngine) Iterations() int64 { return s.iterations.Load() }

func (s *ServerEngine) AddNode(def engine.NodeDefinition) uint32 {
	return s.space.AddNode(def)
}

func (s *ServerEngine) DeleteNode(id engine.RawNodeID) uint32 {
	return s.space.DeleteNode(id)
}

func (s *ServerEngine) AddReference(source, refType engine.RawNodeID, target engine.RawExpandedNodeID, forward bool) uint32 {
	return s.space.AddReference(source, refType, target, forward)
}

func (s *ServerEngine) DeleteReference(source, refType engine.RawNodeID, target engine.RawExpandedNodeID, forward bool) uint32 {
	return s.space.DeleteReference(source, refType, target, forward)
}

func (s *ServerEngine) WriteValue(id engine.RawNodeID, value engine.RawDataValue) uint32 {
	return s.space.WriteValue(id, value)
}

func (s *ServerEngine) ReadValue(id engine.RawNodeID) (engine.RawDataValue, uint32) {
	return s.space.ReadValue(id)
}

func (s *ServerEngine) RegisterDataSource(id engine.RawNodeID, ds engine.DataSourceFuncs) uint32 {
	return s.space.RegisterDataSource(id, ds)
}

func (s *ServerEngine) RegisterMethod(id engine.RawNodeID, fn engine.MethodFunc) uint32 {
	return s.space.RegisterMethod(id, fn)
}

func (s *ServerEngine) SetAccessControl(ac engine.AccessControlFuncs) {
	s.mu.Lock()
	s.ac = ac
	s.mu.Unlock()
}

func (s *ServerEngine) Statistics() engine.ServerStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *ServerEngine) Handle() uintptr { return s.handle }

func (s *ServerEngine) ReleaseHandle() { s.released.Store(true) }

// Released reports whether ReleaseHandle has run.
func (s *ServerEngine) Released() bool { return s.released.Load() }

// SimulateSession drives one session activation through the configured
// access control and updates the statistics counters the way a real
// engine would. Returns the activation status.
func (s *ServerEngine) SimulateSession(token engine.IdentityToken, userID string) uint32 {
	s.mu.Lock()
	s.nextSession++
	session := engine.SessionInfo{
		SessionID:    engine.RawNodeID{Namespace: 1, IDType: 1, Text: fmt.Sprintf("session-%d", s.nextSession)},
		ClientUserID: userID,
	}
	activate := s.ac.ActivateSession
	s.mu.Unlock()

	status := engine.StatusGood
	if activate != nil {
		status = activate(session, token)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CumulatedSessions++
	if engine.IsBad(status) {
		s.stats.RejectedSessions++
		return status
	}
	s.stats.CurrentSessions++
	s.stats.CurrentSecureChannels++
	s.stats.CumulatedSecureChannels++
	return status
}

// SimulateSessionClose closes one simulated session.
func (s *ServerEngine) SimulateSessionClose(userID string) {
	s.mu.Lock()
	closeFn := s.ac.CloseSession
	s.mu.Unlock()
	if closeFn != nil {
		closeFn(engine.SessionInfo{ClientUserID: userID})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats.CurrentSessions > 0 {
		s.stats.CurrentSessions--
	}
	if s.stats.CurrentSecureChannels > 0 {
		s.stats.CurrentSecureChannels--
	}
}
