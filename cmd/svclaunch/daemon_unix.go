//go:build !windows

package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// daemonize re-spawns the launcher detached from the terminal in its own
// session, then exits the foreground process. The marker environment variable
// keeps the child from daemonizing again.
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "failed to resolve executable")
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "failed to open devnull")
	}
	defer devnull.Close()

	argv := append([]string{exe}, os.Args[1:]...)

	pid, err := syscall.ForkExec(exe, argv, &syscall.ProcAttr{
		Env:   append(os.Environ(), daemonEnv+"=1"),
		Files: []uintptr{devnull.Fd(), devnull.Fd(), devnull.Fd()},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return errors.Wrap(err, "failed to detach")
	}

	fmt.Println(pid)
	return nil
}
