package main

import (
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"

	"svclaunch/launch"
)

// bindListeners produces the launcher's listener set. Addresses already
// present in the environment of a replaced process image are adopted by
// descriptor instead of rebound, so a restart never closes and reopens a
// network socket.
func bindListeners(binds []string, j launch.Journaler) (launch.ListenerSet, error) {
	inherited, err := launch.DecodeListeners(os.Environ())
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]launch.Inherited, len(inherited))
	for _, in := range inherited {
		byAddr[in.Addr] = in
	}

	var set launch.ListenerSet
	seen := make(map[string]bool, len(binds))

	for _, bind := range binds {
		addr := normalizeBind(bind)
		if seen[addr] {
			return nil, errors.Errorf("duplicate bind address %q", addr)
		}
		seen[addr] = true

		if in, ok := byAddr[addr]; ok {
			set = append(set, launch.Listener{
				Addr: addr,
				File: os.NewFile(in.FD, addr),
			})
			continue
		}

		f, err := bindOne(addr)
		if err != nil {
			return nil, err
		}
		set = append(set, launch.Listener{Addr: addr, File: f})
	}

	// Inherited sockets not bound anymore belong to a removed address; close
	// them so the old address actually stops accepting.
	for _, in := range inherited {
		if !seen[in.Addr] {
			j.Write(&launch.EventWarning{
				Component: "binder",
				Error:     "closing inherited listener for removed address " + in.Addr,
			})
			os.NewFile(in.FD, in.Addr).Close()
		}
	}

	return set, nil
}

func normalizeBind(bind string) string {
	if strings.Contains(bind, "://") {
		return bind
	}
	return "tcp://" + bind
}

// bindOne listens on one address and returns the socket as an *os.File. The
// net listener wrappers are closed again; only the descriptor matters here,
// the workers do the accepting.
func bindOne(addr string) (*os.File, error) {
	scheme, rest, _ := strings.Cut(addr, "://")

	switch scheme {
	case "tcp":
		ln, err := net.Listen("tcp", rest)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to bind %q", addr)
		}
		f, err := ln.(*net.TCPListener).File()
		ln.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get descriptor for %q", addr)
		}
		return f, nil

	case "unix":
		ln, err := net.Listen("unix", rest)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to bind %q", addr)
		}
		ul := ln.(*net.UnixListener)
		// The file must outlive the wrapper, and the socket path is removed
		// explicitly during restart, not by the wrapper's finalizer.
		ul.SetUnlinkOnClose(false)
		f, err := ul.File()
		ul.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get descriptor for %q", addr)
		}
		return f, nil

	default:
		return nil, errors.Errorf("unsupported bind scheme %q", scheme)
	}
}
