package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lost-woods/nistcheck/src/suite"
)

// Result is what a Job delivers once. Acc is nil whenever Err is non-nil.
type Result struct {
	Acc *Accumulators
	Err error
}

// Job is a run executing on its own goroutine. Its result is handed out
// once; the caller is expected to Poll it from its own loop at a fixed
// interval rather than block on it.
type Job struct {
	done  chan struct{}
	res   Result
	taken atomic.Bool
}

// Start launches Run in the background.
func Start(ctx context.Context, src BlockReader, descs []suite.Descriptor, state *State, log *zap.SugaredLogger) *Job {
	j := &Job{done: make(chan struct{})}
	go func() {
		acc, err := Run(ctx, src, descs, state, log)
		j.res = Result{Acc: acc, Err: err}
		close(j.done)
	}()
	return j
}

// Poll waits at most timeout for the result; a zero timeout never blocks.
// ok is false while the run is still going. Exactly one call to Poll or
// Wait receives the result; later calls report false.
func (j *Job) Poll(timeout time.Duration) (r Result, ok bool) {
	if timeout <= 0 {
		select {
		case <-j.done:
			return j.take()
		default:
			return Result{}, false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-j.done:
		return j.take()
	case <-t.C:
		return Result{}, false
	}
}

// Wait blocks until the run ends. ok is false if the result was already
// taken.
func (j *Job) Wait() (Result, bool) {
	<-j.done
	return j.take()
}

func (j *Job) take() (Result, bool) {
	if !j.taken.CompareAndSwap(false, true) {
		return Result{}, false
	}
	return j.res, true
}
