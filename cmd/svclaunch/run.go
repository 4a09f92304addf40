package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"svclaunch/journal"
	"svclaunch/launch"
	"svclaunch/supervise"
)

// daemonEnv marks a process that has already been re-spawned detached, so the
// child does not daemonize again.
const daemonEnv = "SVCLAUNCH_DAEMON"

var flags struct {
	workers     int
	binds       []string
	pidfile     string
	statePath   string
	tag         string
	restartCmd  string
	environment string
	dir         string
	prune       bool
	preload     bool
	watch       string
	via         []string
	config      string
	journalPath string
	daemon      bool
}

func runLaunch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("missing worker command (pass it after --)")
	}

	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}

	if err := opts.Validate(); err != nil {
		return err
	}

	if opts.Daemon && os.Getenv(daemonEnv) == "" {
		return daemonize()
	}

	j, closeJournal, err := openJournal()
	if err != nil {
		if errors.Is(err, journal.ErrLockedElsewhere) {
			// Non-fatal: another launcher already governs this instance.
			fmt.Fprintln(os.Stderr, "svclaunch is already running")
			return nil
		}
		return err
	}
	defer closeJournal()
	opts.Journaler = j

	listeners, err := bindListeners(opts.Binds, j)
	if err != nil {
		return err
	}

	pool, err := supervise.NewPool(supervise.PoolOptions{
		Command:   args,
		Workers:   max(opts.Workers, 1),
		Single:    !opts.Clustered(),
		Dir:       opts.Dir,
		Listeners: listeners,
	}, j)
	if err != nil {
		return err
	}

	l, err := launch.New(opts, pool, listeners)
	if err != nil {
		return err
	}

	return l.Run(context.Background())
}

// resolveOptions merges the YAML config file (if any) under the command-line
// flags: a flag explicitly set on the command line always wins.
func resolveOptions(cmd *cobra.Command) (launch.Options, error) {
	var opts launch.Options

	if flags.config != "" {
		b, err := os.ReadFile(flags.config)
		if err != nil {
			return opts, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal(b, &opts); err != nil {
			return opts, errors.Wrap(err, "failed to parse config file")
		}
	}

	set := cmd.Flags().Changed

	if set("workers") || opts.Workers == 0 {
		opts.Workers = flags.workers
	}
	if set("bind") || opts.Binds == nil {
		opts.Binds = flags.binds
	}
	if set("pidfile") || opts.Pidfile == "" {
		opts.Pidfile = flags.pidfile
	}
	if set("state-path") || opts.StatePath == "" {
		opts.StatePath = flags.statePath
	}
	if set("tag") || opts.Tag == "" {
		opts.Tag = flags.tag
	}
	if set("restart-cmd") || opts.RestartCmd == "" {
		opts.RestartCmd = flags.restartCmd
	}
	if set("environment") || opts.Environment == "" {
		opts.Environment = flags.environment
	}
	if set("dir") || opts.Dir == "" {
		opts.Dir = flags.dir
	}
	if set("prune") {
		opts.PruneDeps = flags.prune
	}
	if set("preload") {
		opts.PreloadApp = flags.preload
	}
	if set("watch") || opts.WatchFile == "" {
		opts.WatchFile = flags.watch
	}
	if set("via") || opts.Via == nil {
		opts.Via = flags.via
	}
	if set("daemon") {
		opts.Daemon = flags.daemon
	}

	return opts, nil
}

// openJournal builds the event sink: human-readable lines on stderr, plus the
// flock-guarded JSON journal when a path is configured.
func openJournal() (launch.Journaler, func(), error) {
	human := journal.NewHumanWriter(os.Stderr)

	if flags.journalPath == "" {
		return human, func() {}, nil
	}

	fj, err := journal.NewFileLockJournaler(flags.journalPath)
	if err != nil {
		return nil, nil, err
	}

	return journal.MultiWriter(fj, human), func() { fj.Close() }, nil
}
