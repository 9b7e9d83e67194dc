package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/frame"
)

func isDone(r *Request) bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}

func TestTrackerMatch(t *testing.T) {
	tr := NewTracker()
	req := frame.New(frame.TypeRequest, 1, 0x0002, nil)
	r, err := tr.Add(req, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, tr.Len())
	require.Len(t, tr.Unsent(), 1)
	tr.MarkSent(r)
	require.Empty(t, tr.Unsent())

	require.Nil(t, tr.Match(frame.New(frame.TypeAck, 1, 0x0003, nil)), "command mismatch")
	require.Nil(t, tr.Match(frame.New(frame.TypeAck, 2, 0x0002, nil)), "sequence mismatch")
	require.False(t, isDone(r))

	resp := req.Reply(frame.TypeResponse, []byte{1})
	require.Equal(t, r, tr.Match(resp))
	require.True(t, isDone(r))
	state, got, err := r.Result()
	require.Equal(t, RequestCompleted, state)
	require.Equal(t, resp, got)
	require.NoError(t, err)
	require.Equal(t, 0, tr.Len())
	require.Nil(t, tr.Match(resp), "duplicated reply")
}

func TestTrackerBusy(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Add(frame.New(frame.TypeRequest, 5, 1, nil), time.Now().Add(time.Second))
	require.NoError(t, err)
	_, err = tr.Add(frame.New(frame.TypeRequest, 5, 2, nil), time.Now().Add(time.Second))
	require.Equal(t, ErrBusy, err)
	_, err = tr.Add(frame.New(frame.TypeRequest, 6, 1, nil), time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, tr.Len())
}

func TestTrackerExpire(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	r1, _ := tr.Add(frame.New(frame.TypeRequest, 1, 1, nil), now.Add(10*time.Millisecond))
	r2, _ := tr.Add(frame.New(frame.TypeRequest, 2, 1, nil), now.Add(time.Second))
	require.Equal(t, 0, tr.Expire(now))
	require.Equal(t, 1, tr.Expire(now.Add(20*time.Millisecond)))
	require.True(t, isDone(r1))
	require.False(t, isDone(r2))
	state, _, err := r1.Result()
	require.Equal(t, RequestTimedOut, state)
	require.Equal(t, ErrTimeout, err)
	require.Equal(t, 1, tr.Len())
}

func TestTrackerCancelClose(t *testing.T) {
	tr := NewTracker()
	r1, _ := tr.Add(frame.New(frame.TypeRequest, 1, 1, nil), time.Now().Add(time.Second))
	r2, _ := tr.Add(frame.New(frame.TypeRequest, 2, 1, nil), time.Now().Add(time.Second))
	r3, _ := tr.Add(frame.New(frame.TypeRequest, 3, 1, nil), time.Now().Add(time.Second))
	require.True(t, tr.Cancel(r1, ErrDisconnected))
	require.False(t, tr.Cancel(r1, ErrDisconnected))
	_, _, err := r1.Result()
	require.Equal(t, ErrDisconnected, err)

	require.Equal(t, 2, tr.Close(ErrShutdown))
	for _, r := range []*Request{r2, r3} {
		require.True(t, isDone(r))
		state, _, err := r.Result()
		require.Equal(t, RequestError, state)
		require.Equal(t, ErrShutdown, err)
	}
	_, err = tr.Add(frame.New(frame.TypeRequest, 4, 1, nil), time.Now().Add(time.Second))
	require.Equal(t, ErrShutdown, err)
}
