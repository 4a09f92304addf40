package launch

import (
	"github.com/pkg/errors"
)

// Fatal configuration errors, raised by Options.Validate before any resource
// is created.
var (
	ErrClusterUnsupported = errors.New("cluster mode is not supported on this platform")
	ErrDaemonUnsupported  = errors.New("daemonization is not supported on this platform")
	ErrNegativeWorkers    = errors.New("workers must be a non-negative integer")
)

// Hooks are lifecycle callbacks supplied by the embedding application. They
// are never serialized.
type Hooks struct {
	// OnBooted runs once, after the pidfile is written and signals are
	// installed, right before the runner's blocking run loop.
	OnBooted func()
	// OnRestart runs after the runner has quiesced and before the process
	// image is replaced.
	OnRestart func()
}

// Options is the resolved launch configuration. It is the output of whatever
// configuration resolver the embedding application uses (flags, config file,
// environment); the launcher treats it as immutable once validated.
//
// Fields tagged `yaml:"-"` are non-serializable and are stripped from the
// state snapshot.
type Options struct {
	// Workers is the number of worker processes. Zero selects single mode;
	// anything greater selects cluster mode.
	Workers int `yaml:"workers"`

	// Daemon detaches the launcher from the controlling terminal at startup.
	Daemon bool `yaml:"daemon,omitempty"`

	// Binds lists the listen addresses owned by the external binder, in
	// "tcp://host:port" or "unix://path" form. The launcher only reads these
	// for the state snapshot; live sockets arrive via the ListenerSet.
	Binds []string `yaml:"binds,omitempty"`

	// Pidfile, if set, is written with the launcher's pid at startup and
	// removed at exit by the process that wrote it.
	Pidfile string `yaml:"pidfile,omitempty"`

	// StatePath, if set, receives a YAML snapshot of {pid, config} on demand.
	StatePath string `yaml:"state_path,omitempty"`

	// Tag names the service instance in the process title and events.
	Tag string `yaml:"tag,omitempty"`

	// RestartCmd, if set, entirely overrides the reconstructed restart argv.
	// It is whitespace-split and the original argument tail is appended.
	RestartCmd string `yaml:"restart_cmd,omitempty"`

	// Environment is exported as APP_ENV for the application runtime.
	Environment string `yaml:"environment,omitempty"`

	// Dir is the directory the service runs in. Empty means the current
	// directory at launch.
	Dir string `yaml:"dir,omitempty"`

	// PruneDeps requests the one-shot trimmed-environment re-exec before
	// normal startup (cluster mode only, incompatible with PreloadApp).
	PruneDeps bool `yaml:"prune_deps,omitempty"`

	// PreloadApp loads the application in the launcher before forking
	// workers. Meaningful to the runner, recorded here for the snapshot.
	PreloadApp bool `yaml:"preload_app,omitempty"`

	// WatchFile, if set, is watched for writes; touching it requests a full
	// restart.
	WatchFile string `yaml:"watch_file,omitempty"`

	// Via is a wrapper command the restarted image is re-executed through,
	// such as a dependency-isolation tool. It is prepended to the restart
	// argv.
	Via []string `yaml:"via,omitempty"`

	Hooks     Hooks     `yaml:"-"`
	Journaler Journaler `yaml:"-"`
}

// Validate checks the option set for fatal configuration errors. It must be
// called (and pass) before the launcher creates any resource.
func (o *Options) Validate() error {
	if o.Workers < 0 {
		return ErrNegativeWorkers
	}
	if o.Clustered() && !supportsCluster() {
		return ErrClusterUnsupported
	}
	if o.Daemon && !supportsDaemon() {
		return ErrDaemonUnsupported
	}
	return nil
}

// Clustered reports whether the option set selects cluster mode.
func (o *Options) Clustered() bool {
	return o.Workers > 0
}

// Mode returns the human name of the selected mode.
func (o *Options) Mode() string {
	if o.Clustered() {
		return "cluster"
	}
	return "single"
}

func (o *Options) journaler() Journaler {
	if o.Journaler != nil {
		return o.Journaler
	}
	return nopJournaler{}
}

type nopJournaler struct{}

func (nopJournaler) Write(Event) error { return nil }
