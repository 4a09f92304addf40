//go:build linux

package exec

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// setSubreaper marks the current process as a child subreaper so workers
// cannot disown themselves: a worker believed dead must actually be dead, or
// two copies of it could end up accepting on the same sockets.
func setSubreaper() error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return errors.Wrap(err, "failed to set subreaper")
	}
	return nil
}

// sysProcAttr makes workers die with the supervisor. It's the next best thing
// that doesn't involve reparenting orphaned children magic.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
