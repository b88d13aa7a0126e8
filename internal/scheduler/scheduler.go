package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Job is a unit of deadline-driven work. Jobs run on the worker pool and
// must tolerate being invoked after the state they act on has already moved
// on; every game mutation behind a Job re-validates before it writes.
type Job func(ctx context.Context) error

type work struct {
	key string
	fn  Job
}

// Scheduler fires Jobs at wall-clock deadlines. Each pending deadline is a
// one-shot timer identified by a caller-chosen key; scheduling the same key
// again replaces the previous timer, which is how game deadline changes
// (a photo fully voted before its window closes, a game completed early)
// retire their stale timers.
type Scheduler struct {
	clock      clockwork.Clock
	instanceID string

	numWorkers int
	workCh     chan work

	timers   map[string]clockwork.Timer
	timersMu sync.Mutex

	// Track in-flight keys to prevent duplicate processing when a timer
	// fires while the same key is still being worked.
	inFlight   map[string]bool
	inFlightMu sync.Mutex

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Scheduler with the given worker pool size. Pass
// clockwork.NewRealClock() in production and a FakeClock in tests.
func New(clock clockwork.Clock, numWorkers int) *Scheduler {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	return &Scheduler{
		clock:      clock,
		instanceID: uuid.New().String()[:8],
		numWorkers: numWorkers,
		workCh:     make(chan work, numWorkers*2),
		timers:     make(map[string]clockwork.Timer),
		inFlight:   make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled. All pending
// timers are stopped on the way out.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Str("instance", s.instanceID).Int("workers", s.numWorkers).Msg("scheduler started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	<-ctx.Done()

	log.Info().Str("instance", s.instanceID).Msg("shutting down scheduler")
	s.doneOnce.Do(func() { close(s.done) })
	s.cancelAll()
	cancelWorkers()
	wg.Wait()
	log.Info().Str("instance", s.instanceID).Msg("all workers shut down")
	return nil
}

// Schedule arranges for fn to run at deadline. If a timer already exists for
// key it is replaced; a deadline at or before now enqueues immediately.
func (s *Scheduler) Schedule(key string, deadline time.Time, fn Job) {
	duration := deadline.Sub(s.clock.Now())
	if duration <= 0 {
		s.enqueue(key, fn)
		return
	}

	timer := s.clock.NewTimer(duration)
	s.replaceTimer(key, timer)

	go func() {
		select {
		case <-timer.Chan():
			s.removeTimer(key, timer)
			s.enqueue(key, fn)
		case <-s.done:
			stopAndDrainTimer(timer)
		}
	}()

	log.Debug().
		Str("key", key).
		Time("deadline", deadline).
		Dur("duration", duration).
		Str("instance", s.instanceID).
		Msg("scheduled one-shot timer")
}

// Cancel stops and removes the timer for key, if one is pending. A job
// already handed to the worker pool is not recalled.
func (s *Scheduler) Cancel(key string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if timer, exists := s.timers[key]; exists {
		stopAndDrainTimer(timer)
		delete(s.timers, key)
		log.Debug().Str("key", key).Str("instance", s.instanceID).Msg("cancelled timer")
	}
}

func (s *Scheduler) enqueue(key string, fn Job) {
	s.inFlightMu.Lock()
	if s.inFlight[key] {
		s.inFlightMu.Unlock()
		log.Debug().Str("key", key).Str("instance", s.instanceID).Msg("skipping key already in flight")
		return
	}
	s.inFlight[key] = true
	s.inFlightMu.Unlock()

	select {
	case s.workCh <- work{key: key, fn: fn}:
		log.Debug().Str("key", key).Str("instance", s.instanceID).Msg("enqueued for processing")
	case <-s.done:
		s.inFlightMu.Lock()
		delete(s.inFlight, key)
		s.inFlightMu.Unlock()
	}
}

// replaceTimer atomically replaces the timer for a key, stopping any existing
// one first so a stale timer cannot fire after its replacement is installed.
func (s *Scheduler) replaceTimer(key string, newTimer clockwork.Timer) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if existing, exists := s.timers[key]; exists {
		stopAndDrainTimer(existing)
		log.Debug().Str("key", key).Msg("replaced existing timer")
	}
	s.timers[key] = newTimer
}

// removeTimer drops a fired timer from the map, but only if it is still the
// timer that fired. A Schedule racing with the firing goroutine may have
// already installed a replacement under the same key.
func (s *Scheduler) removeTimer(key string, fired clockwork.Timer) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if s.timers[key] == fired {
		delete(s.timers, key)
	}
}

func (s *Scheduler) cancelAll() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	for key, timer := range s.timers {
		stopAndDrainTimer(timer)
		delete(s.timers, key)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Debug().
		Str("instance", s.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", s.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case w := <-s.workCh:
			s.runJob(ctx, workerID, w)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, workerID int, w work) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("key", w.key).
				Int("worker_id", workerID).
				Msg("job panicked")
		}
		s.inFlightMu.Lock()
		delete(s.inFlight, w.key)
		s.inFlightMu.Unlock()
	}()

	if err := w.fn(ctx); err != nil {
		log.Error().
			Err(err).
			Str("key", w.key).
			Str("instance", s.instanceID).
			Int("worker_id", workerID).
			Msg("job failed")
	}
}
