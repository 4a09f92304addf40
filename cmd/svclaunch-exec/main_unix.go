//go:build !windows

// Command svclaunch-exec is the companion re-exec helper used by the
// dependency-prune startup path: svclaunch re-executes itself through this
// binary under a trimmed environment, and this binary execs the original
// command line unchanged.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: svclaunch-exec command [args...]")
		os.Exit(2)
	}

	argv := os.Args[1:]

	path, err := exec.LookPath(argv[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "svclaunch-exec:", err)
		os.Exit(1)
	}

	if err := syscall.Exec(path, argv, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "svclaunch-exec:", err)
		os.Exit(1)
	}
}
