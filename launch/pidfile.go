package launch

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WritePidfile writes pid as the sole line of the file at path.
func WritePidfile(path string, pid int) error {
	err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644)
	return errors.Wrap(err, "failed to write pidfile")
}

// RemovePidfile removes the pidfile only if the recorded pid matches the
// given one. The ownership check keeps a restarted or forked process from
// deleting a pidfile it does not own. It is idempotent: a missing file or an
// empty path is a no-op.
func RemovePidfile(path string, pid int) error {
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to read pidfile")
	}

	recorded, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || recorded != pid {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove pidfile")
	}
	return nil
}

// stateDoc is the structured text document written to the state path.
type stateDoc struct {
	Pid    int      `yaml:"pid"`
	Config *Options `yaml:"config"`
}

// WritePid writes the pidfile if one is configured.
func (l *Launcher) WritePid() error {
	if l.opts.Pidfile == "" {
		return nil
	}
	return WritePidfile(l.opts.Pidfile, l.pid)
}

// WriteState persists the {pid, config} snapshot to the configured state
// path, always writing the pidfile first. Non-serializable option fields
// (lifecycle hooks, the journaler) are stripped by their yaml tags.
func (l *Launcher) WriteState() error {
	if err := l.WritePid(); err != nil {
		return err
	}

	if l.opts.StatePath == "" {
		return nil
	}

	b, err := yaml.Marshal(stateDoc{Pid: l.pid, Config: l.opts})
	if err != nil {
		return errors.Wrap(err, "failed to marshal state")
	}

	err = os.WriteFile(l.opts.StatePath, b, 0644)
	return errors.Wrap(err, "failed to write state file")
}

// removePidfile is the deferred-cleanup step invoked from every normal
// termination path.
func (l *Launcher) removePidfile() {
	if err := RemovePidfile(l.opts.Pidfile, l.pid); err != nil {
		l.j.Write(&EventWarning{Component: "pidfile", Error: err.Error()})
	}
}
