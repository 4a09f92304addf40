package supervise

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"svclaunch/launch"
	"svclaunch/supervise/exec"
)

// WorkerWaitTimeout is the time to wait for a worker to gracefully exit until
// forcefully terminating (and finally SIGKILLing) it.
var WorkerWaitTimeout = time.Minute

// WorkerRetryBackoff is a list of backoff durations when a worker fails to
// start. The last duration is used repetitively.
var WorkerRetryBackoff = []time.Duration{
	0,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// Worker supervises an individual worker process slot. It self-monitors the
// process, so any commanding operation simply cannot fail but only be
// delayed.
type Worker struct {
	WaitTimeout  time.Duration
	RetryBackoff []time.Duration

	j launch.Journaler

	ctx    context.Context
	cancel context.CancelFunc

	index     int
	startProc func(phase int) (exec.Process, error)

	evCh chan func()
	dead chan struct{}
	done chan error

	running atomic.Bool

	// monitor-loop states
	proc       exec.Process
	phase      int
	phasedDone chan struct{}
}

// NewWorker creates a worker slot and its background monitor. The worker
// process is terminated once the context is canceled; WaitStop must be called
// afterwards to wait for the background routine to exit.
func NewWorker(ctx context.Context, index int, start func(phase int) (exec.Process, error), j launch.Journaler) *Worker {
	ctx, cancel := context.WithCancel(ctx)

	w := &Worker{
		WaitTimeout:  WorkerWaitTimeout,
		RetryBackoff: WorkerRetryBackoff,

		ctx:    ctx,
		cancel: cancel,

		j:         j,
		index:     index,
		startProc: start,

		evCh: make(chan func()),
		dead: make(chan struct{}, 1),
		done: make(chan error, 1),
	}

	go w.startMonitor()

	return w
}

// Start starts the worker process.
func (w *Worker) Start() {
	w.evCh <- w.start
}

// Running reports whether a worker process is currently up.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Phase asks the running worker to exit so its replacement starts under the
// given phase. The returned channel is closed once the replacement has
// spawned, letting phased restarts proceed one slot at a time.
func (w *Worker) Phase(phase int) <-chan struct{} {
	done := make(chan struct{})

	select {
	case <-w.ctx.Done():
		close(done)

	case w.evCh <- func() {
		w.phase = phase
		w.phasedDone = done

		if w.proc == nil {
			// The next spawn picks up the new phase on its own.
			return
		}
		if err := w.proc.Signal(syscall.SIGTERM); err != nil {
			w.proc.Kill()
		}
	}:
	}

	return done
}

// Signal forwards a signal to the running worker process, if any.
func (w *Worker) Signal(sig os.Signal) {
	select {
	case <-w.ctx.Done():
	case w.evCh <- func() {
		if w.proc != nil {
			w.proc.Signal(sig)
		}
	}:
	}
}

// Halt kills the worker process immediately, without waiting for a graceful
// exit.
func (w *Worker) Halt() {
	select {
	case <-w.ctx.Done():
	case w.evCh <- func() {
		if w.proc != nil {
			w.proc.Kill()
		}
	}:
	}
}

// WaitStop cancels the worker and blocks until the process has exited and the
// monitor routine is gone. An error is returned if the process had to be
// SIGKILLed.
func (w *Worker) WaitStop() error {
	w.cancel()
	return <-w.done
}

func (w *Worker) start() {
	p, err := w.startProc(w.phase)
	if err != nil {
		// Report the slot as dead so the monitor routine can retry it.
		w.dead <- struct{}{}

		w.j.Write(&launch.EventWorkerExited{
			Index:    w.index,
			ExitCode: -1,
			Error:    err.Error(),
		})
		return
	}

	w.proc = p
	w.running.Store(true)

	// A pending phased restart is satisfied by this spawn: it runs under the
	// requested phase by construction.
	if w.phasedDone != nil {
		close(w.phasedDone)
		w.phasedDone = nil
	}

	w.j.Write(&launch.EventWorkerSpawned{
		Index: w.index,
		PID:   p.PID(),
		Phase: w.phase,
	})

	// Spawn a waiting routine to report to w.dead.
	go func() {
		status := p.Wait()

		ev := launch.EventWorkerExited{
			Index:    w.index,
			PID:      status.PID,
			ExitCode: status.Code,
		}
		if status.Error != nil {
			ev.Error = status.Error.Error()
		}

		// Write to the journal before signaling death to ensure the entry
		// gets written.
		w.j.Write(&ev)

		w.dead <- struct{}{}
	}()
}

func (w *Worker) stop() error {
	if w.proc == nil {
		// already stopped
		return nil
	}

	if err := w.proc.Signal(syscall.SIGTERM); err != nil {
		// Try to SIGKILL if we can't SIGTERM.
		w.proc.Kill()
	}

	after := time.NewTimer(w.WaitTimeout)
	defer after.Stop()

	select {
	case <-after.C:
		// Timeout reached and the worker still hasn't exited yet. Send
		// SIGKILL and bail, since there's not much we can do here.
		w.proc.Kill()

		// Wait until the waiting routine exits.
		<-w.dead

		return errors.New("timed out waiting for worker to exit")

	case <-w.dead:
		return nil
	}
}

// startMonitor starts a monitoring routine that's in charge of restarting the
// worker process and handling incoming commands.
func (w *Worker) startMonitor() {
	var start <-chan time.Time // start backoff
	var timer *time.Timer
	var resetTime time.Time // deadline to consider the worker successfully started

	backoff := -1 // backoff counter

	cleanupTimer := func() {
		if timer == nil {
			return
		}

		timer.Stop()
		timer = nil
		start = nil
	}

	for {
		select {
		case <-w.ctx.Done():
			err := w.stop()
			w.running.Store(false)
			cleanupTimer()
			w.done <- err
			return

		case <-start:
			w.start()
			cleanupTimer()

		case <-w.dead:
			w.proc = nil
			w.running.Store(false)
			cleanupTimer()

			now := time.Now()

			// Check if we're past reset. If yes, then the worker started
			// successfully last time, so the backoff resets. If not,
			// increment backoff and keep trying.
			if now.After(resetTime) {
				backoff = -1
			}

			startDura, resetDura := nextBackoff(w.RetryBackoff, &backoff)
			resetTime = now.Add(resetDura)
			timer = time.NewTimer(startDura)
			start = timer.C

		case fn := <-w.evCh:
			fn()
		}
	}
}

func nextBackoff(backoffs []time.Duration, ix *int) (start, reset time.Duration) {
	startIx := *ix
	resetIx := startIx

	if startIx < len(backoffs)-1 {
		startIx++
		resetIx++

		*ix = startIx

		if resetIx < len(backoffs)-2 {
			resetIx++
		}
	}

	return backoffs[startIx], backoffs[resetIx]
}
