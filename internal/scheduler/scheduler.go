package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"weathersync/internal/syncer"
)

const (
	// settleDelay separates cancel from re-register when a job is replaced,
	// so the cancellation observably lands first. Best effort, not a
	// guarantee.
	settleDelay = 100 * time.Millisecond

	// constraintRecheck is how long a run is pushed back when its
	// constraints are not satisfied.
	constraintRecheck = 5 * time.Minute

	// retryBackoffBase seeds the exponential backoff after a transient
	// failure. Backoff never exceeds the job's own interval.
	retryBackoffBase = 30 * time.Second
)

// SyncFunc runs one sync attempt for a coordinate and reports its outcome.
type SyncFunc func(ctx context.Context, lat, lon float64) syncer.Result

// Constraints are declared on a job spec. The scheduler does not implement
// them; it only consults a ConstraintChecker, which models the hosting
// environment's enforcement.
type Constraints struct {
	RequireNetwork       bool
	RequireBatteryNotLow bool
	RequireStorageNotLow bool
}

// ConstraintChecker reports whether declared constraints are currently met.
type ConstraintChecker interface {
	Satisfied(c Constraints) bool
}

type alwaysSatisfied struct{}

func (alwaysSatisfied) Satisfied(Constraints) bool { return true }

// JobSpec describes a recurring sync job. Name is a singleton identity:
// scheduling a spec with an existing name replaces the previous one.
type JobSpec struct {
	Name        string
	Latitude    float64
	Longitude   float64
	Interval    time.Duration
	Flex        time.Duration // allowed early-execution window before each tick
	Constraints Constraints
}

func (spec JobSpec) validate() error {
	if spec.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if spec.Interval <= 0 {
		return fmt.Errorf("job interval must be positive")
	}
	if spec.Flex < 0 || spec.Flex > spec.Interval {
		return fmt.Errorf("job flex must be within [0, interval]")
	}
	return nil
}

// JobState is an observable snapshot of a scheduled job.
type JobState struct {
	Spec       JobSpec
	NextRun    time.Time
	LastRun    time.Time
	RetryCount int
}

type job struct {
	spec       JobSpec
	nextRun    time.Time
	lastRun    time.Time
	retryCount int
	running    bool
}

// due reports whether the job may run now, honoring the flex window.
func (j *job) due(now time.Time) bool {
	return !now.Before(j.nextRun.Add(-j.spec.Flex))
}

// Scheduler manages named recurring sync jobs: registration with replace
// semantics, constraint-gated dispatch, transient-failure backoff, one-off
// triggers and cancellation. At most one run is in flight at a time.
type Scheduler struct {
	logger  *log.Logger
	sync    SyncFunc
	checker ConstraintChecker

	jobMu  sync.Mutex
	jobs   map[string]*job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wakeup chan struct{}
	runner *runner
}

// New creates a Scheduler. A nil checker means every constraint is treated
// as satisfied (enforcement belongs to the hosting environment).
func New(ctx context.Context, logger *log.Logger, syncFn SyncFunc, checker ConstraintChecker) *Scheduler {
	if checker == nil {
		checker = alwaysSatisfied{}
	}

	cctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		logger:  logger,
		sync:    syncFn,
		checker: checker,
		jobs:    make(map[string]*job),
		ctx:     cctx,
		cancel:  cancel,
		wakeup:  make(chan struct{}, 1),
		runner:  newRunner(),
	}
}

// Schedule registers a recurring job, replacing any job with the same name.
// The first run happens one interval from now; call TriggerNow for an
// immediate sync.
func (s *Scheduler) Schedule(spec JobSpec) error {
	if err := spec.validate(); err != nil {
		return err
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[spec.Name]; exists {
		s.logger.Printf("job %q replaced", spec.Name)
	}
	s.jobs[spec.Name] = &job{
		spec:    spec,
		nextRun: time.Now().Add(spec.Interval),
	}

	s.signalWakeup()
	return nil
}

// UpdateLocation reschedules a job with a new target coordinate. The old
// registration is cancelled first and the replacement enqueued after a short
// settling delay; the window between the two is a known, accepted race.
func (s *Scheduler) UpdateLocation(name string, lat, lon float64) error {
	s.jobMu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.jobMu.Unlock()
		return fmt.Errorf("no job named %q", name)
	}
	spec := j.spec
	s.jobMu.Unlock()

	if err := s.Cancel(name); err != nil {
		return err
	}
	time.Sleep(settleDelay)

	spec.Latitude = lat
	spec.Longitude = lon
	return s.Schedule(spec)
}

// TriggerNow dispatches a one-off run immediately, bypassing the recurring
// cadence. It reports false when a run is already in flight.
func (s *Scheduler) TriggerNow(name string) (bool, error) {
	s.jobMu.Lock()
	j, ok := s.jobs[name]
	s.jobMu.Unlock()
	if !ok {
		return false, fmt.Errorf("no job named %q", name)
	}

	return s.dispatch(j, "manual"), nil
}

// Cancel removes a job. In-flight runs are not interrupted; they finish and
// find their registration gone.
func (s *Scheduler) Cancel(name string) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("no job named %q", name)
	}
	delete(s.jobs, name)
	s.logger.Printf("job %q cancelled", name)

	s.signalWakeup()
	return nil
}

// State returns an observable snapshot of a job.
func (s *Scheduler) State(name string) (JobState, bool) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return JobState{}, false
	}
	return JobState{
		Spec:       j.spec,
		NextRun:    j.nextRun,
		LastRun:    j.lastRun,
		RetryCount: j.retryCount,
	}, true
}

// Start begins the scheduling loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop shuts the scheduler down and waits for the loop and any in-flight
// run to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.runner.wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		next := s.nextWake()
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.dispatchDue()
		case <-s.wakeup:
			timer.Stop()
			continue
		}
	}
}

// nextWake finds the earliest allowed run time among registered jobs.
func (s *Scheduler) nextWake() time.Time {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	next := time.Now().Add(24 * time.Hour)
	for _, j := range s.jobs {
		// An in-flight job has no wake time until its run lands and
		// reschedules it; counting it here would spin the loop on a
		// nextRun that cannot advance yet.
		if j.running {
			continue
		}
		if earliest := j.nextRun.Add(-j.spec.Flex); earliest.Before(next) {
			next = earliest
		}
	}
	return next
}

func (s *Scheduler) dispatchDue() {
	now := time.Now()

	s.jobMu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if j.running || !j.due(now) {
			continue
		}
		if !s.checker.Satisfied(j.spec.Constraints) {
			j.nextRun = now.Add(constraintRecheck)
			s.logger.Printf("job %q constraints not met, rechecking in %s", j.spec.Name, constraintRecheck)
			continue
		}
		due = append(due, j)
	}
	s.jobMu.Unlock()

	for _, j := range due {
		s.dispatch(j, "periodic")
	}
}

// dispatch hands a run to the single-slot runner. The job is marked in
// flight before hand-off so the loop stops waking for it until the run
// completes; a refused hand-off leaves the schedule untouched.
func (s *Scheduler) dispatch(j *job, trigger string) bool {
	s.jobMu.Lock()
	if j.running {
		s.jobMu.Unlock()
		return false
	}
	j.running = true
	s.jobMu.Unlock()

	admitted := s.runner.tryRun(func() {
		s.run(j, trigger)
	})
	if !admitted {
		s.jobMu.Lock()
		j.running = false
		s.jobMu.Unlock()
	}
	return admitted
}

func (s *Scheduler) run(j *job, trigger string) {
	runID := uuid.NewString()
	spec := j.spec
	s.logger.Printf("job %q run %s (%s) for (%v, %v)", spec.Name, runID, trigger, spec.Latitude, spec.Longitude)

	result := s.sync(s.ctx, spec.Latitude, spec.Longitude)

	now := time.Now()
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	j.running = false

	// The registration may have been cancelled or replaced mid-run; a stale
	// job must not resurrect itself in the table.
	current, ok := s.jobs[spec.Name]
	if !ok || current != j {
		s.logger.Printf("job %q run %s finished after replacement (%s)", spec.Name, runID, result.Outcome)
		return
	}

	j.lastRun = now
	switch result.Outcome {
	case syncer.OutcomeSuccess:
		j.retryCount = 0
		j.nextRun = now.Add(spec.Interval)
	case syncer.OutcomeRetry:
		j.retryCount++
		backoff := retryBackoff(j.retryCount, spec.Interval)
		j.nextRun = now.Add(backoff)
		s.logger.Printf("job %q run %s transient failure (attempt %d, retrying in %s): %s",
			spec.Name, runID, j.retryCount, backoff, result.Message)
	case syncer.OutcomeFailure:
		j.retryCount = 0
		j.nextRun = now.Add(spec.Interval)
		s.logger.Printf("job %q run %s permanent failure, waiting for next tick: %s",
			spec.Name, runID, result.Message)
	}

	s.signalWakeup()
}

// retryBackoff doubles from the base per attempt, capped at the recurrence
// interval.
func retryBackoff(attempt int, interval time.Duration) time.Duration {
	backoff := retryBackoffBase
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= interval {
			return interval
		}
	}
	if backoff > interval {
		return interval
	}
	return backoff
}

// signalWakeup notifies the scheduling loop to re-evaluate jobs
func (s *Scheduler) signalWakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}
