package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func startScheduler(t *testing.T, clock clockwork.Clock) *Scheduler {
	t.Helper()
	s := New(clock, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func waitFired(t *testing.T, fired <-chan string, want string) {
	t.Helper()
	select {
	case got := <-fired:
		if got != want {
			t.Fatalf("fired key = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job %q never ran", want)
	}
}

func assertNotFired(t *testing.T, fired <-chan string) {
	t.Helper()
	select {
	case got := <-fired:
		t.Fatalf("unexpected job fired: %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSchedule_FiresAtDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startScheduler(t, clock)

	fired := make(chan string, 1)
	s.Schedule("game:1:activate", clock.Now().Add(5*time.Minute), func(ctx context.Context) error {
		fired <- "game:1:activate"
		return nil
	})

	clock.BlockUntil(1)
	clock.Advance(4 * time.Minute)
	assertNotFired(t, fired)

	clock.Advance(time.Minute)
	waitFired(t, fired, "game:1:activate")
}

func TestSchedule_PastDeadlineRunsImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startScheduler(t, clock)

	fired := make(chan string, 1)
	s.Schedule("photo:9:resolve", clock.Now().Add(-time.Second), func(ctx context.Context) error {
		fired <- "photo:9:resolve"
		return nil
	})

	waitFired(t, fired, "photo:9:resolve")
}

func TestSchedule_SameKeyReplacesTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startScheduler(t, clock)

	fired := make(chan string, 2)
	s.Schedule("game:2:complete", clock.Now().Add(10*time.Minute), func(ctx context.Context) error {
		fired <- "old"
		return nil
	})
	clock.BlockUntil(1)

	s.Schedule("game:2:complete", clock.Now().Add(2*time.Minute), func(ctx context.Context) error {
		fired <- "new"
		return nil
	})
	clock.BlockUntil(1)

	clock.Advance(2 * time.Minute)
	waitFired(t, fired, "new")

	clock.Advance(10 * time.Minute)
	assertNotFired(t, fired)
}

func TestCancel_StopsPendingTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startScheduler(t, clock)

	fired := make(chan string, 1)
	s.Schedule("player:3:reenable", clock.Now().Add(time.Minute), func(ctx context.Context) error {
		fired <- "player:3:reenable"
		return nil
	})
	clock.BlockUntil(1)

	s.Cancel("player:3:reenable")
	clock.Advance(time.Hour)
	assertNotFired(t, fired)
}

func TestCancel_UnknownKeyIsNoOp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startScheduler(t, clock)
	s.Cancel("never-scheduled")
}

func TestWorker_SurvivesPanickingJob(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startScheduler(t, clock)

	s.Schedule("bad", clock.Now(), func(ctx context.Context) error {
		panic("boom")
	})

	fired := make(chan string, 1)
	s.Schedule("good", clock.Now(), func(ctx context.Context) error {
		fired <- "good"
		return nil
	})

	waitFired(t, fired, "good")
}

func TestSchedule_IndependentKeysCoexist(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startScheduler(t, clock)

	fired := make(chan string, 2)
	s.Schedule("ammo:a", clock.Now().Add(time.Minute), func(ctx context.Context) error {
		fired <- "ammo:a"
		return nil
	})
	clock.BlockUntil(1)
	s.Schedule("ammo:b", clock.Now().Add(2*time.Minute), func(ctx context.Context) error {
		fired <- "ammo:b"
		return nil
	})
	clock.BlockUntil(2)

	clock.Advance(time.Minute)
	waitFired(t, fired, "ammo:a")
	clock.Advance(time.Minute)
	waitFired(t, fired, "ammo:b")
}
