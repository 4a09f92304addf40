// Package launch is the process-lifecycle core of svclaunch, providing the
// launcher that boots a multi-worker network service and owns its restart,
// stop and reload control plane.
//
// Mechanism of Operation
//
// Lifecycle Status
//
// A launcher instance holds exactly one lifecycle status: run, halt, stop,
// restart or exit. Signal handlers and supervisory calls only ever record a
// requested status and nudge the delegated runner; every side effect (graceful
// drain, pidfile removal, re-exec) happens synchronously in Run after the
// runner's blocking loop returns. Multiple concurrent requests collapse to the
// status written last, which is fine: all of them mean "terminate this
// instance", differing only in aftermath. There is no way back to run within
// one process instance; a restart begins a new instance whose status starts
// fresh.
//
// Zero-Downtime Restart
//
// On restart, the launcher serializes the bound listener set into
// SVCLAUNCH_INHERIT_n environment entries, clears the close-on-exec flag on
// each descriptor, chdirs into the original launch directory and replaces the
// process image with the reconstructed original command line. The pid and the
// listening sockets stay valid across the swap, so no incoming connection is
// dropped. Unix-domain listeners are the exception: their socket files are
// closed and unlinked first, because the next image must rebind them rather
// than inherit a stale path.
package launch

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
)

// restartGenEnv carries the restart generation across an exec. A fresh
// invocation has no marker; every re-exec increments it.
const restartGenEnv = "SVCLAUNCH_RESTART"

// environmentEnv is consumed by the application runtime.
const environmentEnv = "APP_ENV"

// Status is the authoritative lifecycle status.
type Status int32

const (
	StatusRun Status = iota
	StatusHalt
	StatusStop
	StatusRestart
	StatusExit
)

func (s Status) String() string {
	switch s {
	case StatusRun:
		return "run"
	case StatusHalt:
		return "halt"
	case StatusStop:
		return "stop"
	case StatusRestart:
		return "restart"
	case StatusExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time summary of the delegated runner.
type Stats struct {
	Mode    string `json:"mode"`
	Workers int    `json:"workers"`
	Booted  int    `json:"booted"`
	Phase   int    `json:"phase"`
}

// Runner is the component being launched: the worker-pool supervisor in
// cluster mode, or the single-process request runner. Run blocks until a stop,
// halt or restart is requested; Stop and Halt are non-blocking requests; Drain
// blocks until in-flight work has finished after a stop.
type Runner interface {
	Run(ctx context.Context) error
	Stop()
	Halt()
	Drain()
	BeforeRestart()
	Stats() Stats
}

// PhasedRestarter is implemented by runners that can replace workers one at a
// time, avoiding the capacity gap of a full restart. PhasedRestart must only
// request the restart, not block for it.
type PhasedRestarter interface {
	PhasedRestart() error
}

// IORedirector is implemented by runners that can reopen or redirect their io
// streams, typically on a log-rotation signal.
type IORedirector interface {
	RedirectIO() error
}

// Launcher drives one service instance's lifecycle from boot to exit or
// re-exec. Create one with New and call Run exactly once.
type Launcher struct {
	opts     *Options
	j        Journaler
	runner   Runner
	identity *Identity

	listeners  ListenerSet
	pid        int
	generation int

	status atomic.Int32
}

// New validates the resolved options, resolves the process identity and
// caches the restart argv. The listener set is owned by the external binder;
// the launcher only reads it, re-marks it during restart and closes the
// unix-domain part during shutdown.
func New(opts Options, r Runner, ls ListenerSet) (*Launcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.New("no runner given")
	}

	identity, err := NewIdentity(&opts)
	if err != nil {
		return nil, err
	}

	generation := 0
	if g, err := strconv.Atoi(os.Getenv(restartGenEnv)); err == nil {
		generation = g
	}

	return &Launcher{
		opts:       &opts,
		j:          opts.journaler(),
		runner:     r,
		identity:   identity,
		listeners:  ls,
		pid:        os.Getpid(),
		generation: generation,
	}, nil
}

// Status returns the current lifecycle status.
func (l *Launcher) Status() Status {
	return Status(l.status.Load())
}

// Stats delegates to the runner.
func (l *Launcher) Stats() Stats {
	return l.runner.Stats()
}

// Run installs the signal handlers, writes the persistence artifacts and
// blocks in the runner's run loop. When the loop returns, the terminal status
// decides the aftermath: halt returns immediately, stop drains gracefully,
// restart replaces the process image (and so never returns on success), exit
// drains and returns.
func (l *Launcher) Run(ctx context.Context) error {
	if l.opts.Environment != "" {
		os.Setenv(environmentEnv, l.opts.Environment)
	}

	// One-shot, before any resource is created.
	if err := l.maybePruneReExec(); err != nil {
		return err
	}

	if err := l.WriteState(); err != nil {
		return err
	}

	setProcTitle(l.procTitle())

	stop := l.notifySignals(ctx)
	defer stop()

	if l.opts.WatchFile != "" {
		TryWatch(ctx, l.opts.WatchFile, l)
	}

	l.j.Write(&EventBooting{
		Mode:       l.opts.Mode(),
		PID:        l.pid,
		Generation: l.generation,
		Tag:        l.opts.Tag,
	})

	if l.opts.Hooks.OnBooted != nil {
		l.opts.Hooks.OnBooted()
	}

	if err := l.runner.Run(ctx); err != nil {
		l.removePidfile()
		return errors.Wrap(err, "runner failed")
	}

	switch l.Status() {
	case StatusHalt:
		l.j.Write(&EventShutdown{Graceful: false})
		l.removePidfile()
		return nil

	case StatusRun, StatusStop, StatusExit:
		l.runner.Drain()
		l.j.Write(&EventShutdown{Graceful: true})
		l.removePidfile()
		return nil

	case StatusRestart:
		l.runner.BeforeRestart()
		if l.opts.Hooks.OnRestart != nil {
			l.opts.Hooks.OnRestart()
		}
		// Only returns on failure, which is fatal: the environment and
		// descriptor flags have been mutated for the new image by then.
		return l.reExec()

	default:
		return errors.Errorf("run loop exited with status %v", l.Status())
	}
}

// Stop requests a graceful shutdown. It is idempotent and safe to call from
// signal handlers and supervisory code.
func (l *Launcher) Stop() {
	l.setStatus(StatusStop)
	l.runner.Stop()
}

// Halt requests an immediate shutdown with no graceful drain.
func (l *Launcher) Halt() {
	l.setStatus(StatusHalt)
	l.runner.Halt()
}

// Restart requests a full restart: the run loop will re-exec the original
// command line with the listener set passed through the environment.
func (l *Launcher) Restart() {
	l.setStatus(StatusRestart)
	l.runner.Stop()
}

// PhasedRestart requests a one-worker-at-a-time restart. Runners without the
// capability, and runners that decline it, fall back to a full restart with a
// logged notice.
func (l *Launcher) PhasedRestart() {
	pr, ok := l.runner.(PhasedRestarter)
	if !ok {
		l.j.Write(&EventWarning{
			Component: "launcher",
			Error:     "runner does not support phased restart, doing a full restart instead",
		})
		l.Restart()
		return
	}

	if err := pr.PhasedRestart(); err != nil {
		l.j.Write(&EventWarning{
			Component: "launcher",
			Error:     "phased restart declined (" + err.Error() + "), doing a full restart instead",
		})
		l.Restart()
	}
}

// exitNow is the interrupt path on platforms without image replacement: mark
// exit, let the run loop drain and return.
func (l *Launcher) exitNow() {
	l.setStatus(StatusExit)
	l.runner.Stop()
}

func (l *Launcher) redirectIO() {
	r, ok := l.runner.(IORedirector)
	if !ok {
		l.j.Write(&EventWarning{
			Component: "launcher",
			Error:     "runner does not support io redirection",
		})
		return
	}
	if err := r.RedirectIO(); err != nil {
		l.j.Write(&EventWarning{Component: "launcher", Error: err.Error()})
	}
}

func (l *Launcher) setStatus(s Status) {
	if Status(l.status.Swap(int32(s))) != s {
		l.j.Write(&EventStateChange{Status: s.String()})
	}
}

// reExec replaces the current process image with the cached restart argv. The
// environment mutation (descriptor flags, inherit entries) happens last, right
// before the exec itself, to keep the unrecoverable failure window minimal.
func (l *Launcher) reExec() error {
	kept := closeUnixListeners(l.listeners, l.j)
	argv := l.identity.RestartArgv()

	l.j.Write(&EventRestarting{
		Generation: l.generation + 1,
		Dir:        l.identity.RestartDir,
		Argv:       argv,
	})

	env := restartEnviron(os.Environ())
	inherit, err := EncodeListeners(kept)
	if err != nil {
		return err
	}
	env = append(env, inherit...)
	env = append(env, restartGenEnv+"="+strconv.Itoa(l.generation+1))

	if !imageReplaceSupported {
		l.j.Write(&EventWarning{
			Component: "launcher",
			Error:     "image replacement is unavailable here, restarting under a new pid",
		})
	}

	return replaceImage(l.identity.RestartDir, argv, env)
}

// restartEnviron strips the previous generation's inherit and generation
// entries; fresh ones are appended by the caller.
func restartEnviron(environ []string) []string {
	env := environ[:0]
	for _, kv := range environ {
		if strings.HasPrefix(kv, inheritEnvPrefix) || strings.HasPrefix(kv, restartGenEnv+"=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

func (l *Launcher) procTitle() string {
	title := "svclaunch"
	if l.opts.Tag != "" {
		title += " " + l.opts.Tag
	}
	return title
}
