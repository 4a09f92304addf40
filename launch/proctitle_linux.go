//go:build linux

package launch

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setProcTitle renames the process as seen by ps and /proc. The kernel caps
// comm at 15 bytes; longer titles are truncated. Failures are ignored, the
// title is cosmetic.
func setProcTitle(title string) {
	b := make([]byte, 0, 16)
	b = append(b, title...)
	if len(b) > 15 {
		b = b[:15]
	}
	b = append(b, 0)

	unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}
