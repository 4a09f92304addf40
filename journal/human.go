package journal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"svclaunch/launch"
)

// HumanWriter is a journaler that renders events as single human-readable
// lines, meant for a terminal or a plain log file.
type HumanWriter struct {
	mu sync.Mutex
	w  io.Writer
}

var _ launch.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a journaler writing human-readable lines into w.
func NewHumanWriter(w io.Writer) *HumanWriter {
	return &HumanWriter{w: w}
}

// Write renders and writes one event line.
func (h *HumanWriter) Write(ev launch.Event) error {
	line := Render(ev)

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := fmt.Fprintf(h.w, "%s %s\n", time.Now().Format("15:04:05"), line)
	return err
}

// Render renders one event as a human-readable line, without a timestamp.
func Render(ev launch.Event) string {
	switch ev := ev.(type) {
	case *launch.EventWarning:
		return fmt.Sprintf("warning [%s]: %s", ev.Component, ev.Error)
	case *launch.EventBooting:
		if ev.Generation > 0 {
			return fmt.Sprintf("booting in %s mode, pid %d (restart generation %d)",
				ev.Mode, ev.PID, ev.Generation)
		}
		return fmt.Sprintf("booting in %s mode, pid %d", ev.Mode, ev.PID)
	case *launch.EventStateChange:
		return "status: " + ev.Status
	case *launch.EventSignal:
		return fmt.Sprintf("caught %s, requesting %s", ev.Signal, ev.Action)
	case *launch.EventShutdown:
		if ev.Graceful {
			return "goodbye (graceful shutdown complete)"
		}
		return "halted without draining"
	case *launch.EventRestarting:
		return fmt.Sprintf("restarting into generation %d in %s", ev.Generation, ev.Dir)
	case *launch.EventWatchTriggered:
		return "restart trigger touched: " + ev.Path
	case *launch.EventPruneSkipped:
		return "continuing unpruned: " + ev.Reason
	case *launch.EventWorkerSpawned:
		return fmt.Sprintf("worker %d spawned, pid %d (phase %d)", ev.Index, ev.PID, ev.Phase)
	case *launch.EventWorkerExited:
		if ev.Error != "" {
			return fmt.Sprintf("worker %d (pid %d) exited with code %d: %s",
				ev.Index, ev.PID, ev.ExitCode, ev.Error)
		}
		return fmt.Sprintf("worker %d (pid %d) exited with code %d", ev.Index, ev.PID, ev.ExitCode)
	default:
		return ev.Type()
	}
}
