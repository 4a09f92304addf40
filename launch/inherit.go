package launch

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// inheritEnvPrefix keys the per-listener environment entries consumed by a
// freshly exec'd image. Each value encodes "fd:address".
const inheritEnvPrefix = "SVCLAUNCH_INHERIT_"

// Listener is one bound listening socket, owned by the external binder. The
// launcher only reads it, re-marks it for inheritance during restart, and
// closes it during shutdown.
type Listener struct {
	Addr string // "tcp://host:port" or "unix://path"
	File *os.File
}

// ListenerSet is the ordered set of bound listeners. Addresses are unique.
type ListenerSet []Listener

// Inherited is one listener decoded from the environment of a replaced
// process image.
type Inherited struct {
	FD   uintptr
	Addr string
}

// EncodeListeners serializes the listener set into environment entries and
// marks every descriptor to survive exec. It mutates descriptor flags, so
// callers must only invoke it immediately before the exec itself.
func EncodeListeners(ls ListenerSet) ([]string, error) {
	env := make([]string, 0, len(ls))

	for i, l := range ls {
		fd := l.File.Fd()
		if err := clearCloseOnExec(fd); err != nil {
			return nil, errors.Wrapf(err, "failed to mark %s for inheritance", l.Addr)
		}
		env = append(env, fmt.Sprintf("%s%d=%d:%s", inheritEnvPrefix, i, fd, l.Addr))
	}

	return env, nil
}

// DecodeListeners parses the inherited-listener entries out of an environment
// in the form produced by EncodeListeners. Entries are returned in index
// order; a gap in the indices ends the scan, matching the contiguous way they
// are written.
func DecodeListeners(environ []string) ([]Inherited, error) {
	byKey := make(map[string]string, len(environ))
	for _, kv := range environ {
		if !strings.HasPrefix(kv, inheritEnvPrefix) {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		byKey[k] = v
	}

	var inherited []Inherited
	for i := 0; ; i++ {
		v, ok := byKey[inheritEnvPrefix+strconv.Itoa(i)]
		if !ok {
			break
		}

		fdStr, addr, ok := strings.Cut(v, ":")
		if !ok {
			return nil, errors.Errorf("malformed inherit entry %d: %q", i, v)
		}
		fd, err := strconv.ParseUint(fdStr, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed descriptor in inherit entry %d", i)
		}

		inherited = append(inherited, Inherited{FD: uintptr(fd), Addr: addr})
	}

	return inherited, nil
}

// ChildInheritEnv builds the inherited-listener entries for a spawned child
// whose extra files start at firstFD (3 when passed right after stdio). No
// descriptor flags are touched: spawn-time file passing handles that.
func ChildInheritEnv(ls ListenerSet, firstFD uintptr) []string {
	env := make([]string, 0, len(ls))
	for i, l := range ls {
		env = append(env, fmt.Sprintf("%s%d=%d:%s", inheritEnvPrefix, i, firstFD+uintptr(i), l.Addr))
	}
	return env
}

// closeUnixListeners closes every unix-domain listener's backing file and
// unlinks its socket path, returning the remaining (inheritable) listeners.
// A stale socket file cannot be left behind for the next image to rebind.
func closeUnixListeners(ls ListenerSet, j Journaler) ListenerSet {
	kept := ls[:0]

	for _, l := range ls {
		path, ok := strings.CutPrefix(l.Addr, "unix://")
		if !ok {
			kept = append(kept, l)
			continue
		}

		if err := l.File.Close(); err != nil {
			j.Write(&EventWarning{
				Component: "restart",
				Error:     "failed to close " + l.Addr + ": " + err.Error(),
			})
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.Write(&EventWarning{
				Component: "restart",
				Error:     "failed to unlink " + path + ": " + err.Error(),
			})
		}
	}

	return kept
}
