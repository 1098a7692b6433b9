package optimize

import (
	"context"

	"github.com/quayside/berthd/core/model"
	"github.com/quayside/berthd/core/state"
)

// Job is a handle on an optimizer invocation running off the request path.
// Cancellation is effective until the solve starts consuming its budget; a
// running solve returns its incumbent instead of being force-killed.
type Job struct {
	done   chan struct{}
	result Result
	cancel context.CancelFunc
}

// Submit runs the solve in the background and returns its handle.
func (o *Optimizer) Submit(parent context.Context, snap *state.Snapshot, horizon model.Window, vessels []string) *Job {
	ctx, cancel := context.WithCancel(parent)
	j := &Job{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(j.done)
		defer cancel()
		j.result = o.Optimize(ctx, snap, horizon, vessels)
	}()
	return j
}

// Done is closed when the result is available.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel asks the solve to stop; the job still completes with its incumbent.
func (j *Job) Cancel() { j.cancel() }

// Result blocks until completion.
func (j *Job) Result() Result {
	<-j.done
	return j.result
}
