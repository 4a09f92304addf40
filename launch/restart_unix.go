//go:build !windows

package launch

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// imageReplaceSupported reports whether restart can replace the process image
// in place, keeping the pid and inherited descriptors valid with no
// connection-accepting gap.
const imageReplaceSupported = true

func supportsCluster() bool { return true }
func supportsDaemon() bool  { return true }

// replaceImage chdirs into dir and replaces the current process image. It
// only returns on failure, which is fatal: the descriptor flags and
// environment have already been mutated for the new image by that point.
func replaceImage(dir string, argv, env []string) error {
	if err := os.Chdir(dir); err != nil {
		return errors.Wrapf(err, "failed to chdir to %q", dir)
	}
	if err := unix.Exec(argv[0], argv, env); err != nil {
		return errors.Wrapf(err, "failed to exec %q", argv[0])
	}
	return nil // unreachable
}

// clearCloseOnExec marks the descriptor to survive exec.
func clearCloseOnExec(fd uintptr) error {
	_, err := unix.FcntlInt(fd, unix.F_SETFD, 0)
	return err
}
