package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDescribeTruncatesToken(t *testing.T) {
	s := New("0123456789abcdef", Data{UserID: "alice", Role: "admin"}, time.Now())
	require.Equal(t, "user=alice role=admin token=01234567", s.Describe())

	s = New("tok", Data{UserID: "bob"}, time.Now())
	require.Equal(t, "user=bob token=tok", s.Describe())

	var nilSession *Session
	require.Equal(t, "", nilSession.Describe())
	require.Equal(t, "", nilSession.Token())
}

func TestTouchOnlyMovesForward(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s := New("tok", Data{UserID: "u"}, t0)
	require.Equal(t, t0, s.LastActivity())

	s.Touch(t0.Add(time.Minute))
	require.Equal(t, t0.Add(time.Minute), s.LastActivity())

	s.Touch(t0)
	require.Equal(t, t0.Add(time.Minute), s.LastActivity())
}

func TestRecordRoundTrip(t *testing.T) {
	t0 := time.Unix(1000, 0)
	s := New("tok", Data{UserID: "u", Attributes: map[string]string{"edge": "e1"}}, t0)
	restored := FromRecord(s.Record())
	require.Equal(t, s.Token(), restored.Token())
	require.Equal(t, s.Data, restored.Data)
	require.Equal(t, t0, restored.CreatedAt)
}
