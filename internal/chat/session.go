package chat

import (
	"sync"
)

// State is the lifecycle position of a Session.
type State int

const (
	// StateConnecting is a session that has not registered yet.
	StateConnecting State = iota
	// StateActive is a registered session that receives relayed records.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the hub side of one connected client.
// Its transport is owned by the hub and never shared.
type Session struct {
	// ID identifies the session and becomes the sender ID on registration.
	ID string

	conn     Conn
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once

	mu          sync.RWMutex
	state       State
	displayName string
	avatar      []byte
}

func newSession(id string, conn Conn, queueSize int) *Session {
	return &Session{
		ID:       id,
		conn:     conn,
		outgoing: make(chan []byte, queueSize),
		done:     make(chan struct{}),
		state:    StateConnecting,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// DisplayName returns the name announced on registration.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// Avatar returns the opaque avatar announced on registration.
func (s *Session) Avatar() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatar
}

// RemoteAddr returns the transport's remote address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// identify records the identity announced by a Register.
// A closed session stays closed.
func (s *Session) identify(displayName string, avatar []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.displayName = displayName
	s.avatar = avatar
	return true
}

// activate makes the session receive relayed records.
func (s *Session) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = StateActive
	}
}

// enqueue queues a frame without blocking. It fails when the queue is full
// or the session is closed.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outgoing <- frame:
		return true
	default:
		return false
	}
}

// close marks the session Closed and closes its transport once.
func (s *Session) close() (closed bool, err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
		err = s.conn.Close()
		closed = true
	})
	return closed, err
}
