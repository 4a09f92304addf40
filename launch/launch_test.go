package launch

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRunner is a Runner whose Run blocks until a stop is requested.
type fakeRunner struct {
	mu            sync.Mutex
	stops         int
	halts         int
	drains        int
	beforeRestart int

	quit     chan struct{}
	quitOnce sync.Once
	running  chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		quit:    make(chan struct{}),
		running: make(chan struct{}),
	}
}

func (r *fakeRunner) Run(ctx context.Context) error {
	close(r.running)
	select {
	case <-ctx.Done():
	case <-r.quit:
	}
	return nil
}

func (r *fakeRunner) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *fakeRunner) Halt() {
	r.mu.Lock()
	r.halts++
	r.mu.Unlock()
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *fakeRunner) Drain() {
	r.mu.Lock()
	r.drains++
	r.mu.Unlock()
}

func (r *fakeRunner) BeforeRestart() {
	r.mu.Lock()
	r.beforeRestart++
	r.mu.Unlock()
}

func (r *fakeRunner) Stats() Stats { return Stats{Mode: "fake"} }

// phasedRunner adds the phased-restart capability on top of fakeRunner.
type phasedRunner struct {
	*fakeRunner
	phasedErr error
	phased    int
}

func (r *phasedRunner) PhasedRestart() error {
	r.mu.Lock()
	r.phased++
	r.mu.Unlock()
	return r.phasedErr
}

func newLauncher(t *testing.T, opts Options, r Runner) (*Launcher, *mockJournal) {
	t.Helper()

	j := &mockJournal{}
	opts.Journaler = j

	l, err := New(opts, r, nil)
	if err != nil {
		t.Fatal("failed to create launcher:", err)
	}

	return l, j
}

func TestModeSelection(t *testing.T) {
	for _, test := range []struct {
		workers int
		mode    string
	}{
		{0, "single"},
		{1, "cluster"},
		{16, "cluster"},
	} {
		opts := Options{Workers: test.workers}
		if err := opts.Validate(); err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", test.workers, err)
		}
		if mode := opts.Mode(); mode != test.mode {
			t.Errorf("workers=%d: got mode %q, expected %q", test.workers, mode, test.mode)
		}
	}

	opts := Options{Workers: -1}
	if err := opts.Validate(); err != ErrNegativeWorkers {
		t.Errorf("workers=-1: got %v, expected ErrNegativeWorkers", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	r := newFakeRunner()
	l, j := newLauncher(t, Options{}, r)

	l.Stop()
	l.Stop()

	if s := l.Status(); s != StatusStop {
		t.Errorf("got status %v, expected stop", s)
	}

	// The status change is recorded once, no matter how many times the stop
	// is requested.
	j.Verify(t, true, []Event{
		&EventStateChange{Status: "stop"},
	})
}

func TestRunStopScenario(t *testing.T) {
	pidfile := filepath.Join(t.TempDir(), "t.pid")

	r := newFakeRunner()
	l, j := newLauncher(t, Options{Workers: 0, Pidfile: pidfile}, r)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	<-r.running

	// The pidfile contains the current pid as its sole line.
	b, err := os.ReadFile(pidfile)
	if err != nil {
		t.Fatal("failed to read pidfile:", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid != os.Getpid() {
		t.Fatalf("pidfile contains %q, expected pid %d", b, os.Getpid())
	}

	l.Stop()

	if err := <-done; err != nil {
		t.Fatal("run failed:", err)
	}

	if _, err := os.Stat(pidfile); !os.IsNotExist(err) {
		t.Errorf("pidfile still present after stop: %v", err)
	}

	if r.drains != 1 {
		t.Errorf("got %d drains, expected 1", r.drains)
	}
	if !j.Contains(&EventShutdown{Graceful: true}) {
		t.Error("missing graceful shutdown banner")
	}
}

func TestRunHalt(t *testing.T) {
	r := newFakeRunner()
	l, j := newLauncher(t, Options{}, r)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	<-r.running
	l.Halt()

	if err := <-done; err != nil {
		t.Fatal("run failed:", err)
	}

	if r.drains != 0 {
		t.Errorf("halt must not drain, got %d drains", r.drains)
	}
	if r.halts != 1 {
		t.Errorf("got %d halts, expected 1", r.halts)
	}
	if !j.Contains(&EventShutdown{Graceful: false}) {
		t.Error("missing halt banner")
	}
}

func TestPhasedRestartFallback(t *testing.T) {
	t.Run("capability missing", func(t *testing.T) {
		r := newFakeRunner()
		l, j := newLauncher(t, Options{}, r)

		l.PhasedRestart()

		if s := l.Status(); s != StatusRestart {
			t.Errorf("got status %v, expected restart fallback", s)
		}
		if !j.ContainsType(eventWarning) {
			t.Error("fallback must log a notice")
		}
	})

	t.Run("runner declined", func(t *testing.T) {
		r := &phasedRunner{fakeRunner: newFakeRunner(), phasedErr: errPhasedDeclined}
		l, j := newLauncher(t, Options{}, r)

		l.PhasedRestart()

		if s := l.Status(); s != StatusRestart {
			t.Errorf("got status %v, expected restart fallback", s)
		}
		if !j.ContainsType(eventWarning) {
			t.Error("fallback must log a notice")
		}
	})

	t.Run("runner accepted", func(t *testing.T) {
		r := &phasedRunner{fakeRunner: newFakeRunner()}
		l, j := newLauncher(t, Options{}, r)

		l.PhasedRestart()

		if s := l.Status(); s != StatusRun {
			t.Errorf("got status %v, expected run", s)
		}
		if r.phased != 1 {
			t.Errorf("got %d phased restarts, expected 1", r.phased)
		}
		if j.ContainsType(eventWarning) {
			t.Error("unexpected warning on a successful phased restart")
		}
	})
}

func TestRedirectIOUnsupported(t *testing.T) {
	r := newFakeRunner()
	l, j := newLauncher(t, Options{}, r)

	l.redirectIO()

	if !j.ContainsType(eventWarning) {
		t.Error("unsupported io redirection must log a notice")
	}
}

func TestLastStatusWins(t *testing.T) {
	r := newFakeRunner()
	l, _ := newLauncher(t, Options{}, r)

	l.Restart()
	l.Stop()

	if s := l.Status(); s != StatusStop {
		t.Errorf("got status %v, expected the last written status", s)
	}
}

func TestRunnerError(t *testing.T) {
	pidfile := filepath.Join(t.TempDir(), "t.pid")

	r := &errorRunner{}
	l, _ := newLauncher(t, Options{Pidfile: pidfile}, r)

	if err := l.Run(context.Background()); err == nil {
		t.Fatal("expected runner failure to propagate")
	}

	if _, err := os.Stat(pidfile); !os.IsNotExist(err) {
		t.Errorf("pidfile still present after runner failure: %v", err)
	}
}

type errorRunner struct{ fakeRunner }

func (r *errorRunner) Run(ctx context.Context) error { return errBoom }

var (
	errPhasedDeclined = errString("workers still booting")
	errBoom           = errString("boom")
)

type errString string

func (e errString) Error() string { return string(e) }

// waitStatus polls until the launcher reaches the wanted status or the
// timeout expires.
func waitStatus(t *testing.T, l *Launcher, want Status) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("timed out waiting for status %v, still %v", want, l.Status())
}
