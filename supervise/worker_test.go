package supervise

import (
	"context"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"svclaunch/launch"
	"svclaunch/supervise/exec"
)

const forever time.Duration = math.MaxInt64

// mockJournal is an in-memory event store for tests.
type mockJournal struct {
	mutex    sync.Mutex
	journals []launch.Event
}

var _ launch.Journaler = (*mockJournal)(nil)

func (m *mockJournal) Write(ev launch.Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.journals = append(m.journals, ev)
	return nil
}

// Verify verifies that the given journals slice is equal to the one stored
// internally. If strict is true, then a length check is performed, otherwise,
// the unmatched events are returned.
//
// Consecutive calls to Verify will match the remaining unmatched events.
func (m *mockJournal) Verify(t *testing.T, strict bool, journals []launch.Event) []launch.Event {
	t.Helper()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if strict && len(journals) != len(m.journals) {
		t.Errorf("mismatch journal length, got %d, expected %d", len(m.journals), len(journals))
		return nil
	}

	for i, ev := range journals {
		if !reflect.DeepEqual(m.journals[i], ev) {
			t.Errorf("journal %d mismatch, got %#v, expected %#v", i, m.journals[i], ev)
		}
	}

	m.journals = m.journals[len(journals):]
	return m.journals
}

// contains reports whether an equal event was journaled, without consuming it.
func (m *mockJournal) contains(ev launch.Event) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, got := range m.journals {
		if reflect.DeepEqual(got, ev) {
			return true
		}
	}
	return false
}

func newNextPID() func() int {
	var pid uint32
	return func() int { return int(atomic.AddUint32(&pid, 1)) }
}

func TestWorker(t *testing.T) {
	t.Run("graceful stop", func(t *testing.T) {
		nextPID := newNextPID()
		j := mockJournal{}

		w := NewWorker(context.Background(), 0, func(int) (exec.Process, error) {
			return exec.NewSleepProcess(forever, 0, nextPID()), nil
		}, &j)
		w.RetryBackoff = []time.Duration{0} // no backoff
		w.Start()

		// WaitStop guarantees that the background routines would've exited
		// by the time the function returns.
		if err := w.WaitStop(); err != nil {
			t.Error("failed to stop worker:", err)
		}

		j.Verify(t, true, []launch.Event{
			&launch.EventWorkerSpawned{Index: 0, PID: 1},
			&launch.EventWorkerExited{Index: 0, PID: 1, ExitCode: 0},
		})
	})

	t.Run("kill timeout", func(t *testing.T) {
		nextPID := newNextPID()
		j := mockJournal{}

		w := NewWorker(context.Background(), 3, func(int) (exec.Process, error) {
			return exec.NewSleepProcess(forever, forever, nextPID()), nil
		}, &j)
		w.WaitTimeout = time.Microsecond
		w.RetryBackoff = []time.Duration{0} // no backoff
		w.Start()
		// Ignore the error since we can check the journal.
		w.WaitStop()

		j.Verify(t, true, []launch.Event{
			&launch.EventWorkerSpawned{Index: 3, PID: 1},
			&launch.EventWorkerExited{Index: 3, PID: 1, ExitCode: -1},
		})
	})

	t.Run("spawn backoff", func(t *testing.T) {
		j := mockJournal{}

		var attempts uint32

		w := NewWorker(context.Background(), 0, func(int) (exec.Process, error) {
			attempt := atomic.AddUint32(&attempts, 1)
			if attempt > 3 {
				return nil, errors.New("after")
			}
			return nil, errors.New("before")
		}, &j)
		w.RetryBackoff = []time.Duration{
			0,
			1 * time.Microsecond,
			5 * time.Microsecond,
			time.Second,
		}
		w.Start()

		time.Sleep(time.Millisecond / 2)

		if err := w.WaitStop(); err != nil {
			t.Error("failed to stop worker:", err)
		}

		j.Verify(t, false, []launch.Event{
			&launch.EventWorkerExited{Index: 0, ExitCode: -1, Error: "before"},
			&launch.EventWorkerExited{Index: 0, ExitCode: -1, Error: "before"},
			&launch.EventWorkerExited{Index: 0, ExitCode: -1, Error: "before"},
			&launch.EventWorkerExited{Index: 0, ExitCode: -1, Error: "after"},
		})
	})

	t.Run("autorestart", func(t *testing.T) {
		nextPID := newNextPID()
		j := mockJournal{}

		newProcCh := make(chan struct{})

		w := NewWorker(context.Background(), 0, func(int) (exec.Process, error) {
			select {
			case newProcCh <- struct{}{}:
			default:
			}
			return exec.NewSleepProcess(0, 0, nextPID()), nil
		}, &j)
		w.RetryBackoff = []time.Duration{0} // no backoff
		w.Start()

		var count int
		for range newProcCh {
			count++
			if count > 5 {
				break
			}
		}

		if err := w.WaitStop(); err != nil {
			t.Error("failed to stop worker:", err)
		}

		expect := make([]launch.Event, 0, 10)
		for i := 0; i < 5; i++ {
			expect = append(expect,
				&launch.EventWorkerSpawned{Index: 0, PID: i + 1},
				&launch.EventWorkerExited{Index: 0, PID: i + 1, ExitCode: 0},
			)
		}

		remaining := j.Verify(t, false, expect)
		t.Log("remaining journals:", remaining)
	})

	t.Run("phased replacement", func(t *testing.T) {
		nextPID := newNextPID()
		j := mockJournal{}

		w := NewWorker(context.Background(), 0, func(phase int) (exec.Process, error) {
			return exec.NewSleepProcess(forever, 0, nextPID()), nil
		}, &j)
		w.RetryBackoff = []time.Duration{0} // no backoff
		w.Start()

		select {
		case <-w.Phase(1):
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for the phased replacement")
		}

		if err := w.WaitStop(); err != nil {
			t.Error("failed to stop worker:", err)
		}

		j.Verify(t, true, []launch.Event{
			&launch.EventWorkerSpawned{Index: 0, PID: 1, Phase: 0},
			&launch.EventWorkerExited{Index: 0, PID: 1, ExitCode: 0},
			&launch.EventWorkerSpawned{Index: 0, PID: 2, Phase: 1},
			&launch.EventWorkerExited{Index: 0, PID: 2, ExitCode: 0},
		})
	})
}
