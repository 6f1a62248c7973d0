package binder

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/wsbind/pkg/session"
)

type failingManager struct{}

func (failingManager) GetSessionByToken(context.Context, string) (*session.Session, bool, error) {
	return nil, false, errors.New("store unavailable")
}

type panickingManager struct{}

func (panickingManager) GetSessionByToken(context.Context, string) (*session.Session, bool, error) {
	panic("manager exploded")
}

func TestLookupByToken(t *testing.T) {
	f := newFixture(t, HandlerFuncs[*testConn, *session.Session]{})
	ctx := context.Background()

	_, ok := f.server.LookupByToken(ctx, "unknown")
	require.False(t, ok)

	sess := f.newSession(t, "alice")
	_, ok = f.server.LookupByToken(ctx, sess.Token())
	require.False(t, ok, "existing session without a connection")

	c := &testConn{id: "c1"}
	require.NoError(t, f.server.Bind(c, sess))
	got, ok := f.server.LookupByToken(ctx, sess.Token())
	require.True(t, ok)
	require.Same(t, c, got)

	f.server.OnClose(c, 1000, "", true)
	_, ok = f.server.LookupByToken(ctx, sess.Token())
	require.False(t, ok)
}

func TestLookupByTokenToleratesBrokenManagers(t *testing.T) {
	for name, m := range map[string]session.Manager[*session.Session]{
		"error": failingManager{},
		"panic": panickingManager{},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			s, err := New[*testConn, *session.Session](HandlerFuncs[*testConn, *session.Session]{}, m)
			require.NoError(t, err)
			require.NotPanics(t, func() {
				got, ok := s.LookupByToken(context.Background(), "tok")
				require.False(t, ok)
				require.Nil(t, got)
			})
		})
	}
}
