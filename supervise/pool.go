// Package supervise implements the built-in cluster runner: a pool of worker
// processes spawned from a worker command, each slot self-monitoring with
// restart backoff, supporting graceful stop, halt and phased restart.
package supervise

import (
	"context"
	"os"
	"strconv"
	"sync"
	"syscall"

	"github.com/pkg/errors"

	"svclaunch/launch"
	"svclaunch/supervise/exec"
)

// workerIndexEnv tells a worker which slot it occupies.
const workerIndexEnv = "SVCLAUNCH_WORKER"

// workerPhaseEnv tells a worker which restart phase spawned it.
const workerPhaseEnv = "SVCLAUNCH_PHASE"

// PoolOptions configures a worker pool.
type PoolOptions struct {
	// Command is the worker command argv. Argv[0] must be a path.
	Command []string

	// Workers is the number of slots. The launcher passes 1 here in single
	// mode; phased restart then has nothing to phase and is refused.
	Workers int

	// Single marks the pool as a single-process runner rather than a cluster
	// supervisor.
	Single bool

	// Dir is the working directory for workers.
	Dir string

	// Listeners are the bound sockets workers accept on, passed to each
	// worker as inherited descriptors starting at fd 3.
	Listeners launch.ListenerSet
}

// Pool is a worker-pool supervisor implementing launch.Runner, as well as the
// phased-restart and io-redirection capabilities.
type Pool struct {
	opts PoolOptions
	j    launch.Journaler

	mu      sync.Mutex
	workers []*Worker
	phase   int

	quit     chan struct{}
	quitOnce sync.Once

	start func(index, phase int) (exec.Process, error)
}

var (
	_ launch.Runner          = (*Pool)(nil)
	_ launch.PhasedRestarter = (*Pool)(nil)
	_ launch.IORedirector    = (*Pool)(nil)
)

// NewPool creates a worker pool. Workers are not spawned until Run.
func NewPool(opts PoolOptions, j launch.Journaler) (*Pool, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("no worker command given")
	}
	if opts.Workers < 1 {
		return nil, errors.New("pool needs at least one worker")
	}

	p := &Pool{
		opts: opts,
		j:    j,
		quit: make(chan struct{}),
	}
	p.start = p.spawn

	return p, nil
}

// Run spawns the workers and blocks until a stop, halt or restart is
// requested or the context is canceled. Workers are not yet reaped when Run
// returns; Drain does that.
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.workers = make([]*Worker, p.opts.Workers)
	for i := range p.workers {
		index := i
		w := NewWorker(ctx, index, func(phase int) (exec.Process, error) {
			return p.start(index, phase)
		}, p.j)
		w.Start()
		p.workers[i] = w
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-p.quit:
	}

	// Canceling the worker contexts starts their graceful exit; Drain blocks
	// on the results.
	return nil
}

// Stop requests the run loop to return. Non-blocking.
func (p *Pool) Stop() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// Halt kills every worker immediately and requests the run loop to return.
func (p *Pool) Halt() {
	p.mu.Lock()
	for _, w := range p.workers {
		w.Halt()
	}
	p.mu.Unlock()

	p.Stop()
}

// Drain blocks until every worker process has exited and its monitor routine
// is gone.
func (p *Pool) Drain() {
	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()

	for _, w := range workers {
		if err := w.WaitStop(); err != nil {
			p.j.Write(&launch.EventWarning{Component: "pool", Error: err.Error()})
		}
	}
}

// BeforeRestart quiesces the pool before the launcher replaces the process
// image: descendants must be gone before their inherited descriptors are
// handed to the next image.
func (p *Pool) BeforeRestart() {
	p.Drain()
}

// PhasedRestart replaces workers one slot at a time, so the pool never loses
// more than one worker of capacity. It only requests the restart; the
// replacement proceeds in the background.
func (p *Pool) PhasedRestart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opts.Single {
		return errors.New("phased restart requires cluster mode")
	}
	if p.workers == nil {
		return errors.New("pool is not running")
	}

	p.phase++
	phase := p.phase
	workers := p.workers

	go func() {
		for _, w := range workers {
			<-w.Phase(phase)
		}
	}()

	return nil
}

// RedirectIO forwards a log-reopen request to every worker.
func (p *Pool) RedirectIO() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		w.Signal(syscall.SIGHUP)
	}
	return nil
}

// Stats reports the pool's current shape.
func (p *Pool) Stats() launch.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	mode := "cluster"
	if p.opts.Single {
		mode = "single"
	}

	booted := 0
	for _, w := range p.workers {
		if w.Running() {
			booted++
		}
	}

	return launch.Stats{
		Mode:    mode,
		Workers: p.opts.Workers,
		Booted:  booted,
		Phase:   p.phase,
	}
}

// spawn starts one worker process with the listener set passed through
// descriptors 3..n and the matching inherit entries in its environment.
func (p *Pool) spawn(index, phase int) (exec.Process, error) {
	files := make([]*os.File, len(p.opts.Listeners))
	addrs := p.opts.Listeners
	for i, l := range addrs {
		files[i] = l.File
	}

	env := os.Environ()
	env = append(env, launch.ChildInheritEnv(addrs, 3)...)
	env = append(env,
		workerIndexEnv+"="+strconv.Itoa(index),
		workerPhaseEnv+"="+strconv.Itoa(phase),
	)

	return exec.Start(exec.StartConfig{
		Argv:  p.opts.Command,
		Dir:   p.opts.Dir,
		Env:   env,
		Files: files,
	})
}
