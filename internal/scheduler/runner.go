package scheduler

import "sync"

// runner admits at most one task at a time. It stands in for the managed
// job runtime that guarantees mutual exclusion for a uniquely named job:
// a run dispatched while another is in flight is simply not admitted.
type runner struct {
	slot chan struct{}
	wg   sync.WaitGroup
}

func newRunner() *runner {
	return &runner{slot: make(chan struct{}, 1)}
}

// tryRun executes fn on its own goroutine when the slot is free and reports
// whether the task was admitted.
func (r *runner) tryRun(fn func()) bool {
	select {
	case r.slot <- struct{}{}:
	default:
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slot }()
		fn()
	}()
	return true
}

// wait blocks until every admitted task has finished.
func (r *runner) wait() {
	r.wg.Wait()
}
