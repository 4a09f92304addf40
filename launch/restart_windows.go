//go:build windows

package launch

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// Windows keeps the running binary's file locked and has no exec image
// replacement, so restart spawns a fresh copy and the current process exits
// once the child has started.
const imageReplaceSupported = false

func supportsCluster() bool { return false }
func supportsDaemon() bool  { return false }

func replaceImage(dir string, argv, env []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to spawn %q", argv[0])
	}

	os.Exit(0)
	return nil // unreachable
}

// clearCloseOnExec is a no-op: descriptor inheritance across the spawned
// replacement is not available here, and listeners are rebound instead.
func clearCloseOnExec(fd uintptr) error { return nil }
