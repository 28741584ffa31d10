package consumer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akave-ai/logpipe/internal/metrics"
)

type ConnState string

const (
	Disconnected ConnState = "disconnected"
	Connecting   ConnState = "connecting"
	Connected    ConnState = "connected"
)

type LoopState string

const (
	LoopIdle    LoopState = "idle"
	LoopRunning LoopState = "running"
	LoopFailed  LoopState = "failed"
	LoopStopped LoopState = "stopped"
)

const (
	TargetStore  = "store"
	TargetBroker = "broker"
)

type connStatus struct {
	state     ConnState
	attempts  uint64
	lastError string
}

// Status is the observable state of a consumer: connection state per target,
// consumption loop state and counters. It is safe for concurrent use.
type Status struct {
	mu          sync.RWMutex
	instanceID  uuid.UUID
	startedAt   time.Time
	conns       map[string]*connStatus
	loop        LoopState
	loopErr     string
	restarts    uint64
	persisted   uint64
	malformed   uint64
	lastEventAt time.Time
}

func NewStatus() *Status {
	return &Status{
		instanceID: uuid.New(),
		startedAt:  time.Now().UTC(),
		conns: map[string]*connStatus{
			TargetStore:  {state: Disconnected},
			TargetBroker: {state: Disconnected},
		},
		loop: LoopIdle,
	}
}

func (s *Status) connecting(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[target]
	c.state = Connecting
	c.attempts++
	s.updateReadyLocked()
}

func (s *Status) connected(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[target]
	c.state = Connected
	c.lastError = ""
	s.updateReadyLocked()
}

func (s *Status) disconnected(target string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[target]
	c.state = Disconnected
	if err != nil {
		c.lastError = err.Error()
	}
	s.updateReadyLocked()
}

func (s *Status) setLoop(state LoopState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = state
	if err != nil {
		s.loopErr = err.Error()
	}
	s.updateReadyLocked()
}

func (s *Status) restarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
}

func (s *Status) eventPersisted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted++
	s.lastEventAt = time.Now().UTC()
}

func (s *Status) eventMalformed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed++
}

func (s *Status) updateReadyLocked() {
	if s.readyLocked() {
		metrics.Ready.Set(1)
	} else {
		metrics.Ready.Set(0)
	}
}

func (s *Status) readyLocked() bool {
	return s.conns[TargetStore].state == Connected &&
		s.conns[TargetBroker].state == Connected &&
		s.loop == LoopRunning
}

// Ready reports whether both connections are up and the loop is consuming.
func (s *Status) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readyLocked()
}

// ConnSnapshot is the exported view of one connection.
type ConnSnapshot struct {
	State     ConnState `json:"state"`
	Attempts  uint64    `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
}

// Snapshot is a point-in-time copy of Status, shaped for JSON.
type Snapshot struct {
	InstanceID    string       `json:"instance_id"`
	StartedAt     time.Time    `json:"started_at"`
	Ready         bool         `json:"ready"`
	Store         ConnSnapshot `json:"store"`
	Broker        ConnSnapshot `json:"broker"`
	Loop          LoopState    `json:"loop"`
	LastLoopError string       `json:"last_loop_error,omitempty"`
	Restarts      uint64       `json:"restarts"`
	Persisted     uint64       `json:"persisted"`
	Malformed     uint64       `json:"malformed"`
	LastEventAt   *time.Time   `json:"last_event_at,omitempty"`
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		InstanceID:    s.instanceID.String(),
		StartedAt:     s.startedAt,
		Ready:         s.readyLocked(),
		Store:         s.conns[TargetStore].snapshot(),
		Broker:        s.conns[TargetBroker].snapshot(),
		Loop:          s.loop,
		LastLoopError: s.loopErr,
		Restarts:      s.restarts,
		Persisted:     s.persisted,
		Malformed:     s.malformed,
	}
	if !s.lastEventAt.IsZero() {
		t := s.lastEventAt
		snap.LastEventAt = &t
	}
	return snap
}

func (c *connStatus) snapshot() ConnSnapshot {
	return ConnSnapshot{State: c.state, Attempts: c.attempts, LastError: c.lastError}
}
