package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSession_Lifecycle(t *testing.T) {
	req := require.New(t)
	s := NewSession("s1")
	identity := Identity{ID: "u1", Username: "alice"}

	req.Equal(StateConnecting, s.State())

	req.True(s.Authenticate(identity))
	req.Equal(StateAuthenticated, s.State())
	req.Equal(identity, s.Identity())

	req.True(s.Activate())
	req.Equal(StateActive, s.State())
	req.True(s.IsActive())

	req.True(s.Close())
	req.Equal(StateClosed, s.State())
}

func TestSession_AuthenticateOnlyFromConnecting(t *testing.T) {
	req := require.New(t)
	s := NewSession("s1")

	req.True(s.Authenticate(Identity{ID: "u1", Username: "alice"}))
	req.False(s.Authenticate(Identity{ID: "u2", Username: "mallory"}))
	req.Equal("u1", s.Identity().ID)
}

func TestSession_ActivateSucceedsAtMostOnce(t *testing.T) {
	req := require.New(t)
	s := NewSession("s1")
	s.Authenticate(Identity{ID: "u1", Username: "alice"})

	req.True(s.Activate())
	req.False(s.Activate())
}

func TestSession_ClosedIsTerminal(t *testing.T) {
	req := require.New(t)
	s := NewSession("s1")

	req.True(s.Close())
	req.False(s.Close())
	req.False(s.Authenticate(Identity{ID: "u1", Username: "alice"}))
	req.False(s.Activate())
	req.Equal(StateClosed, s.State())
}

func TestSession_CloseFromAnyState(t *testing.T) {
	req := require.New(t)

	s := NewSession("s1")
	req.True(s.Close())

	s = NewSession("s2")
	s.Authenticate(Identity{ID: "u1", Username: "alice"})
	req.True(s.Close())

	s = NewSession("s3")
	s.Authenticate(Identity{ID: "u1", Username: "alice"})
	s.Activate()
	req.True(s.Close())
}
