package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsPeerAddrAndID(t *testing.T) {
	s := New("127.0.0.1:54321")
	assert.Equal(t, "127.0.0.1:54321", s.PeerAddr)
	assert.NotEmpty(t, s.ID)
}

func TestObserveTracksLastRequestID(t *testing.T) {
	s := New("peer")
	s.Observe(7)
	s.Observe(3)
	assert.EqualValues(t, 3, s.LastRequestID())
}

func TestCursorTracking(t *testing.T) {
	s := New("peer")
	s.TrackCursor(100)
	s.TrackCursor(200)
	assert.ElementsMatch(t, []int64{100, 200}, s.OutstandingCursors())

	s.UntrackCursor(100)
	assert.ElementsMatch(t, []int64{200}, s.OutstandingCursors())
}

func TestAuthHandshakeStub(t *testing.T) {
	s := New("peer")
	assert.Equal(t, AuthUnauthenticated, s.Auth().Phase)

	convID := s.BeginAuth("SCRAM-SHA-256")
	require.Equal(t, AuthInProgress, s.Auth().Phase)

	s.CompleteAuth(convID)
	assert.Equal(t, AuthAuthenticated, s.Auth().Phase)
}

func TestCompleteAuthIgnoresStaleConversationID(t *testing.T) {
	s := New("peer")
	s.BeginAuth("SCRAM-SHA-256")
	s.CompleteAuth(999)
	assert.Equal(t, AuthInProgress, s.Auth().Phase)
}
