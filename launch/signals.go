package launch

import (
	"context"
	"os"
	"os/signal"
)

// signalBinding maps one control signal to a lifecycle action. The action
// must only record a status or request a delegated stop: blocking work is
// deferred to the run loop, which sequences it after the runner returns.
type signalBinding struct {
	sig    os.Signal // nil when the host platform lacks the signal
	name   string
	action string
	fn     func(*Launcher)
}

// notifySignals installs the control-signal handlers. Signals missing on the
// host platform are tolerated and merely logged. The returned function
// uninstalls the handlers.
func (l *Launcher) notifySignals(ctx context.Context) func() {
	bindings := signalTable()

	available := make([]signalBinding, 0, len(bindings))
	sigs := make([]os.Signal, 0, len(bindings))

	for _, b := range bindings {
		if b.sig == nil {
			l.j.Write(&EventWarning{
				Component: "signals",
				Error:     "signal " + b.name + " unavailable on this platform, " + b.action + " disabled",
			})
			continue
		}
		available = append(available, b)
		sigs = append(sigs, b.sig)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sig := <-ch:
				for _, b := range available {
					if b.sig != sig {
						continue
					}
					l.j.Write(&EventSignal{Signal: b.name, Action: b.action})
					b.fn(l)
					break
				}
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
