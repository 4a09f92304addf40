//go:build !windows

package launch

import "syscall"

func signalTable() []signalBinding {
	return []signalBinding{
		{syscall.SIGUSR2, "SIGUSR2", "restart", (*Launcher).Restart},
		{syscall.SIGUSR1, "SIGUSR1", "phased restart", (*Launcher).PhasedRestart},
		{syscall.SIGTERM, "SIGTERM", "stop", (*Launcher).Stop},
		{syscall.SIGHUP, "SIGHUP", "redirect io", (*Launcher).redirectIO},
	}
}
