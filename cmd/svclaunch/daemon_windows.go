//go:build windows

package main

import "svclaunch/launch"

// Options.Validate already rejects daemonization here; this exists so the
// package still compiles.
func daemonize() error {
	return launch.ErrDaemonUnsupported
}
