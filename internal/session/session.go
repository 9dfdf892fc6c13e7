// Package session holds per-connection state -- peer address, last
// request id, outstanding cursors, and auth progress -- created on TCP
// accept and destroyed on close. Unlike the cursor
// registry, a session belongs to exactly one connection goroutine, so
// there is no global table here -- the server (C6) owns one *Session
// per accepted connection and passes it to the dispatcher.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// AuthPhase tracks the (stubbed) SASL handshake state machine.
type AuthPhase int

const (
	AuthUnauthenticated AuthPhase = iota
	AuthInProgress
	AuthAuthenticated
)

// AuthState is the session's authentication progress. Mechanism
// negotiation is accepted and recorded (saslStart/saslContinue must
// not hard-fail a driver's handshake) but no credential is actually
// verified -- this server has no user/credential store to check
// against.
type AuthState struct {
	Phase          AuthPhase
	Mechanism      string
	ConversationID int32
}

// Session is the per-connection state a server goroutine owns for the
// lifetime of one TCP connection.
type Session struct {
	ID       string
	PeerAddr string

	mu              sync.Mutex
	lastRequestID   int32
	outstandingCurs map[int64]struct{}
	auth            AuthState
}

// New creates a session for a freshly accepted connection.
func New(peerAddr string) *Session {
	return &Session{
		ID:              uuid.NewString(),
		PeerAddr:        peerAddr,
		outstandingCurs: make(map[int64]struct{}),
	}
}

// Observe records the request id of an incoming message, for
// diagnostics and the rare driver that expects the server to echo
// monotonicity back in logs; out-of-order ids are tolerated, not
// rejected, since the wire protocol never guarantees client-side
// ordering across multiplexed requests.
func (s *Session) Observe(requestID int32) {
	s.mu.Lock()
	s.lastRequestID = requestID
	s.mu.Unlock()
}

// LastRequestID returns the most recently observed incoming request id.
func (s *Session) LastRequestID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequestID
}

// TrackCursor records a cursor id as belonging to this session, for
// outstanding-cursor accounting separate from the registry's own
// per-session scan.
func (s *Session) TrackCursor(id int64) {
	s.mu.Lock()
	s.outstandingCurs[id] = struct{}{}
	s.mu.Unlock()
}

// UntrackCursor removes a cursor id once it is killed or exhausted.
func (s *Session) UntrackCursor(id int64) {
	s.mu.Lock()
	delete(s.outstandingCurs, id)
	s.mu.Unlock()
}

// OutstandingCursors returns a snapshot of this session's known live
// cursor ids.
func (s *Session) OutstandingCursors() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.outstandingCurs))
	for id := range s.outstandingCurs {
		ids = append(ids, id)
	}
	return ids
}

// BeginAuth records a saslStart, returning the conversation id the
// reply should carry.
func (s *Session) BeginAuth(mechanism string) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = AuthState{Phase: AuthInProgress, Mechanism: mechanism, ConversationID: 1}
	return s.auth.ConversationID
}

// CompleteAuth marks the handshake done for the given conversation id;
// a stale or unknown conversation id is ignored rather than rejected,
// since there is no real credential check behind it.
func (s *Session) CompleteAuth(conversationID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auth.ConversationID == conversationID {
		s.auth.Phase = AuthAuthenticated
	}
}

// Auth returns a copy of the current auth state.
func (s *Session) Auth() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}
