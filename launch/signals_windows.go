//go:build windows

package launch

import (
	"os"
	"syscall"
)

func signalTable() []signalBinding {
	// USR1/USR2/HUP cannot be delivered here; they are reported as
	// unavailable and their features disabled. With no image replacement a
	// bare interrupt must still shut down cleanly, so it is bound to exit.
	return []signalBinding{
		{nil, "SIGUSR2", "restart", nil},
		{nil, "SIGUSR1", "phased restart", nil},
		{syscall.SIGTERM, "SIGTERM", "stop", (*Launcher).Stop},
		{nil, "SIGHUP", "redirect io", nil},
		{os.Interrupt, "interrupt", "exit", (*Launcher).exitNow},
	}
}
