package realtime

import (
	"context"
	"sync"
	"time"
)

// State is a session lifecycle stage. Closed and Errored are terminal.
type State string

const (
	StateNegotiating State = "negotiating"
	StateOpen        State = "open"
	StateClosed      State = "closed"
	StateErrored     State = "errored"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

var transitions = map[State][]State{
	StateNegotiating: {StateOpen, StateClosed, StateErrored},
	StateOpen:        {StateClosed, StateErrored},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SessionInfo is a point-in-time copy of a session's bookkeeping.
type SessionInfo struct {
	ID             string
	ConversationID string
	Model          string
	State          State
	CreatedAt      time.Time
	LastActivity   time.Time
}

// Session owns one negotiated peer connection and the event channels bound
// to it: the one the relay creates and any the remote peer opens under the
// same label.
type Session struct {
	ID             string
	ConversationID string
	Model          string
	CreatedAt      time.Time

	peer     PeerConnection
	channels []DataChannel

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	closeOnce    sync.Once
	closeErr     error
}

func newSession(id, conversationID, model string, now time.Time) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:             id,
		ConversationID: conversationID,
		Model:          model,
		CreatedAt:      now,
		ctx:            ctx,
		cancel:         cancel,
		state:          StateNegotiating,
		lastActivity:   now,
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info snapshots the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:             s.ID,
		ConversationID: s.ConversationID,
		Model:          s.Model,
		State:          s.state,
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.lastActivity,
	}
}

// transition moves to the next state, returning the previous one.
func (s *Session) transition(to State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	if !canTransition(from, to) {
		return from, ErrIllegalTransition
	}
	s.state = to
	return from, nil
}

// attach binds another channel; it fails once the session is terminal.
func (s *Session) attach(dc DataChannel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.channels = append(s.channels, dc)
	return true
}

// Channels returns the channels bound so far.
func (s *Session) Channels() []DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DataChannel(nil), s.channels...)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.state.Terminal() && s.lastActivity.Before(cutoff)
}

// close releases the peer connection; safe to call repeatedly.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.peer != nil {
			s.closeErr = s.peer.Close()
		}
	})
	return s.closeErr
}
