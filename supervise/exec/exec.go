// Package exec provides an abstraction around package os' Process
// implementation for easier testing.
package exec

import (
	"os"
	"runtime"
)

// Process describes a worker process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	Wait() ExitStatus
}

// ExitStatus is a process' exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 for interrupt
	Error error
}

// StartConfig describes how a worker process is started.
type StartConfig struct {
	Argv []string
	Dir  string
	Env  []string
	// Files are extra descriptors passed to the child after stdio, so the
	// first one becomes fd 3 in the child.
	Files []*os.File
}

type process struct {
	*os.Process
}

var _ Process = process{}

// Start creates a new worker process on the system.
func Start(cfg StartConfig) (Process, error) {
	// Lock this goroutine to the OS thread for Pdeathsig.
	// See https://github.com/golang/go/issues/27505.
	runtime.LockOSThread()

	if err := setSubreaper(); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	files := append([]*os.File{os.Stdin, os.Stdout, os.Stderr}, cfg.Files...)

	p, err := os.StartProcess(cfg.Argv[0], cfg.Argv, &os.ProcAttr{
		Dir:   cfg.Dir,
		Env:   cfg.Env,
		Files: files,
		Sys:   sysProcAttr(),
	})
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	return process{p}, nil
}

func (proc process) PID() int {
	return proc.Pid
}

// Wait waits for the process to exit. It must be called on the same goroutine
// as Start.
func (proc process) Wait() ExitStatus {
	s, err := proc.Process.Wait()
	runtime.UnlockOSThread()

	return ExitStatus{
		PID:   proc.Pid,
		Code:  s.ExitCode(),
		Error: err,
	}
}
