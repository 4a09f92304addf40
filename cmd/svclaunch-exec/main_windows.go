//go:build windows

package main

import (
	"fmt"
	"os"
)

func main() {
	// Dependency pruning requires cluster mode, which is unavailable here.
	fmt.Fprintln(os.Stderr, "svclaunch-exec is not supported on windows")
	os.Exit(1)
}
