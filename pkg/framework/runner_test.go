package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunnerStopsOthers(t *testing.T) {
	failure := errors.New("failure")
	r := NewRunner()
	r.Go(
		NamedRun("blocking", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(ctx context.Context) error {
			return failure
		}),
	)
	errCh := make(chan error, 1)
	go func() { errCh <- r.Wait() }()
	select {
	case err := <-errCh:
		require.Error(t, err)
		require.True(t, errors.Is(err, failure))
		require.Equal(t, "failure", err.Error())
	case <-time.After(500 * time.Millisecond):
		t.Fatal("runner not stopped")
	}
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner()
	for n := 0; n < 3; n++ {
		r.Go(RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	}
	r.Stop()
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())
	a, b := errors.New("a"), errors.New("b")
	err := errs.Add(a, nil, b).Aggregate()
	require.Error(t, err)
	require.Equal(t, "multiple errors:\n  a\n  b", err.Error())
	require.True(t, errors.Is(err, b))
}

func TestLayeredStopsUpperFirst(t *testing.T) {
	var order []string
	var lock sync.Mutex
	record := func(name string) {
		lock.Lock()
		order = append(order, name)
		lock.Unlock()
	}
	baseUp := make(chan struct{})
	base := RunFunc(func(ctx context.Context) error {
		close(baseUp)
		<-ctx.Done()
		record("base")
		return ctx.Err()
	})
	upper := RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		// base must still be running here.
		time.Sleep(20 * time.Millisecond)
		record("upper")
		return ctx.Err()
	})
	r := NewRunner().Go(Layered(base, upper))
	<-baseUp
	r.Stop()
	require.NoError(t, r.Wait())
	require.Equal(t, []string{"upper", "base"}, order)
}

func TestLayeredBaseFailure(t *testing.T) {
	failure := errors.New("link failure")
	upperDone := make(chan struct{})
	r := NewRunner().Go(Layered(
		RunFunc(func(ctx context.Context) error { return failure }),
		RunFunc(func(ctx context.Context) error {
			defer close(upperDone)
			<-ctx.Done()
			return ctx.Err()
		}),
	))
	err := r.Wait()
	require.True(t, errors.Is(err, failure))
	<-upperDone
}
