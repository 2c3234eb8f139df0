package host

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/hostkernel/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

type fakeService struct {
	name string

	startErr error
	runs     atomic.Int32
	stops    atomic.Int32
	run      func(ctx context.Context, attempt int32) error
	stop     func(ctx context.Context) error
	started  atomic.Bool
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(context.Context) error {
	s.started.Store(true)
	return s.startErr
}

func (s *fakeService) Run(ctx context.Context) error {
	n := s.runs.Add(1)
	if s.run != nil {
		return s.run(ctx, n)
	}
	<-ctx.Done()
	return nil
}

func (s *fakeService) Stop(ctx context.Context) error {
	s.stops.Add(1)
	if s.stop != nil {
		return s.stop(ctx)
	}
	return nil
}

type quietService struct{ name string }

func (q quietService) Name() string { return q.name }

func runAsync(app *App) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- app.Run()
	}()
	return done
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestSupervisorRestartsAfterErrorAndExit(t *testing.T) {
	testlog.Start(t)
	logger, logs := testlog.Capture(t)
	app := New(WithLogger(logger), WithRestartDelay(5*time.Millisecond))
	defer app.Close()

	svc := &fakeService{
		name: "flaky",
		run: func(ctx context.Context, attempt int32) error {
			if attempt == 1 {
				return errors.New("boom")
			}
			return nil
		},
	}
	app.RegisterService(svc)
	done := runAsync(app)

	waitUntil(t, 2*time.Second, func() bool { return svc.runs.Load() >= 3 })
	app.Shutdown()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after shutdown")
	}

	if n := logs.Count("service exited with error"); n != 1 {
		t.Fatalf("expected one error exit, got %d\n%s", n, logs.String())
	}
	if n := logs.Count("service exited unexpectedly"); n < 1 {
		t.Fatalf("expected unexpected-exit entries, got %d", n)
	}
	if svc.stops.Load() != 1 {
		t.Fatalf("expected one stop, got %d", svc.stops.Load())
	}
	if app.Phase() != PhaseStopped {
		t.Fatalf("expected stopped phase, got %s", app.Phase())
	}
	status := app.ServiceStatuses()["flaky"]
	if status.State != string(StateStopped) || status.Restarts < 2 || status.LastError != "boom" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestSupervisorRecoversPanics(t *testing.T) {
	testlog.Start(t)
	logger, logs := testlog.Capture(t)
	app := New(WithLogger(logger), WithRestartDelay(time.Millisecond))
	defer app.Close()

	svc := &fakeService{
		name: "panicky",
		run: func(ctx context.Context, attempt int32) error {
			if attempt == 1 {
				panic("kaboom")
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	app.RegisterService(svc)
	done := runAsync(app)

	waitUntil(t, 2*time.Second, func() bool { return svc.runs.Load() >= 2 })
	app.Shutdown()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if logs.Count("panic: kaboom") != 1 {
		t.Fatalf("expected recovered panic in logs:\n%s", logs.String())
	}
}

func TestCancellationDuringBackoffEndsLoop(t *testing.T) {
	testlog.Start(t)
	app := New(WithLogger(testlog.Start(t)), WithRestartDelay(time.Hour))
	defer app.Close()

	svc := &fakeService{
		name: "once",
		run: func(context.Context, int32) error {
			return errors.New("fail")
		},
	}
	app.RegisterService(svc)
	done := runAsync(app)

	waitUntil(t, time.Second, func() bool {
		return app.ServiceStatuses()["once"].State == string(StateBackoff)
	})
	app.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("backoff wait was not cancellable")
	}
	if svc.runs.Load() != 1 {
		t.Fatalf("expected no retry after cancellation, got %d runs", svc.runs.Load())
	}
}

func TestStartFailureIsFatal(t *testing.T) {
	testlog.Start(t)
	logger, logs := testlog.Capture(t)
	app := New(WithLogger(logger))
	defer app.Close()

	bad := &fakeService{name: "bad", startErr: errors.New("no port")}
	good := &fakeService{name: "good"}
	app.RegisterService(good)
	app.RegisterService(bad)

	err := app.Run()
	var startErr *StartError
	if !errors.As(err, &startErr) || startErr.Service != "bad" {
		t.Fatalf("expected StartError for bad, got %v", err)
	}
	if good.runs.Load() != 0 || bad.runs.Load() != 0 {
		t.Fatalf("run phase entered after start failure")
	}
	if logs.Count("service failed to start") != 1 {
		t.Fatalf("expected start failure log")
	}
	if app.Phase() != PhaseFailed {
		t.Fatalf("expected failed phase, got %s", app.Phase())
	}
}

func TestStopFailuresAreLoggedNotFatal(t *testing.T) {
	testlog.Start(t)
	logger, logs := testlog.Capture(t)
	app := New(WithLogger(logger), WithStopTimeout(20*time.Millisecond))
	defer app.Close()

	slow := &fakeService{
		name: "slow",
		stop: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	broken := &fakeService{
		name: "broken",
		stop: func(context.Context) error { return errors.New("stuck") },
	}
	app.RegisterService(slow)
	app.RegisterService(broken)
	app.RegisterService(quietService{name: "quiet"})

	done := runAsync(app)
	waitUntil(t, time.Second, func() bool {
		return app.ServiceStatuses()["quiet"].State == string(StateQuiescent)
	})
	app.Shutdown()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := logs.Count("service failed to stop"); n != 2 {
		t.Fatalf("expected two stop failures, got %d", n)
	}
	if app.ServiceStatuses()["quiet"].State != string(StateStopped) {
		t.Fatalf("quiescent service not marked stopped")
	}
}

func TestRunTwice(t *testing.T) {
	testlog.Start(t)
	app := New()
	defer app.Close()
	app.Shutdown()
	if err := app.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := app.Run(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStartersRunConcurrently(t *testing.T) {
	testlog.Start(t)
	app := New(WithLogger(zerolog.Nop()))
	defer app.Close()

	var (
		mu      sync.Mutex
		arrived int
		release = make(chan struct{})
	)
	for _, name := range []string{"a", "b"} {
		app.RegisterService(&barrierService{name: name, enter: func() {
			mu.Lock()
			arrived++
			if arrived == 2 {
				close(release)
			}
			mu.Unlock()
		}, release: release})
	}

	done := runAsync(app)
	select {
	case <-release:
	case <-time.After(time.Second):
		t.Fatalf("starters did not overlap")
	}
	app.Shutdown()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

type barrierService struct {
	name    string
	enter   func()
	release chan struct{}
}

func (b *barrierService) Name() string { return b.name }

func (b *barrierService) Start(ctx context.Context) error {
	b.enter()
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
