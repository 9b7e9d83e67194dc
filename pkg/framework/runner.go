// Package framework runs the long-lived parts of a process together.
package framework

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

// Runnable is a background task stopped by cancelling its context.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Named is implemented by a Runnable with a name for logging.
type Named interface {
	Name() string
}

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

type runResult struct {
	name string
	err  error
}

// Runner runs Runnables together. When one of them stops, the others are
// cancelled.
type Runner struct {
	Context context.Context

	cancel   context.CancelFunc
	count    int
	resultCh chan runResult
	exitCh   chan struct{}
}

// NewRunner creates a runner with a background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a parent context.
func NewRunnerWith(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		Context:  ctx,
		cancel:   cancel,
		resultCh: make(chan runResult, 1),
		exitCh:   make(chan struct{}),
	}
}

// HandleSignals stops on SIGINT or SIGTERM. A second signal forces Wait to
// return.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("%v: stop requested", sig)
		r.cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go starts Runnables.
func (r *Runner) Go(runners ...Runnable) *Runner {
	for _, runner := range runners {
		name := strconv.Itoa(r.count)
		if named, ok := runner.(Named); ok {
			name = named.Name()
		}
		r.count++
		go func(runner Runnable, name string) {
			glog.V(4).Infof("Runner[%s] started", name)
			err := runner.Run(r.Context)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			r.resultCh <- runResult{name: name, err: err}
		}(runner, name)
	}
	return r
}

// Stop cancels all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// Wait waits for all Runnables and aggregates their errors. Cancellation
// is not reported as an error.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for n := 0; n < r.count; n++ {
		select {
		case <-r.exitCh:
			return errors.New("forced exit")
		case res := <-r.resultCh:
			if res.err != nil && !errors.Is(res.err, context.Canceled) {
				glog.Errorf("%s: %v", res.name, res.err)
				errs.Add(res.err)
			}
			r.cancel()
		}
	}
	r.count = 0
	return errs.Aggregate()
}

type layered struct {
	base  Runnable
	upper []Runnable
}

// Layered runs upper on top of base. When the context is cancelled, upper
// is stopped first and base keeps running until all of upper returned, so
// upper may still use base while shutting down. When base stops on its own,
// upper is cancelled.
func Layered(base Runnable, upper ...Runnable) Runnable {
	return &layered{base: base, upper: upper}
}

// Run implements Runnable.
func (l *layered) Run(ctx context.Context) error {
	if len(l.upper) == 0 {
		return l.base.Run(ctx)
	}
	baseCtx, stopBase := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBase()
	baseCh := make(chan error, 1)
	go func() { baseCh <- l.base.Run(baseCtx) }()

	upper := NewRunnerWith(ctx).Go(l.upper...)
	upperCh := make(chan error, 1)
	go func() { upperCh <- upper.Wait() }()

	var baseErr, upperErr error
	select {
	case baseErr = <-baseCh:
		upper.Stop()
		upperErr = <-upperCh
	case upperErr = <-upperCh:
		stopBase()
		baseErr = <-baseCh
	}
	if errors.Is(baseErr, context.Canceled) {
		baseErr = nil
	}
	var errs AggregatedError
	if err := errs.Add(upperErr, baseErr).Aggregate(); err != nil {
		return err
	}
	return ctx.Err()
}
