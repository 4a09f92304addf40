package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"svclaunch/journal"
)

var rootCmd = &cobra.Command{
	Use:   "svclaunch [flags] -- worker-command [args...]",
	Short: "svclaunch boots a multi-worker network service and owns its lifecycle",
	Long: `svclaunch resolves the runtime configuration, binds (or inherits) the
listening sockets, and supervises the service's worker processes. It owns the
restart, stop and reload control plane: SIGUSR2 restarts the whole launcher in
place without dropping a connection, SIGUSR1 replaces workers one at a time,
SIGTERM stops gracefully and SIGHUP asks workers to reopen their logs.`,
	Args: cobra.ArbitraryArgs,
	RunE: runLaunch,

	SilenceUsage: true,
}

var logCmd = &cobra.Command{
	Use:   "log <journal-file>",
	Short: "render a JSON event journal as human-readable lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&flags.workers, "workers", "w", 0, "worker count; 0 runs in single mode")
	f.StringArrayVarP(&flags.binds, "bind", "b", nil, "listen address (tcp://host:port or unix://path), repeatable")
	f.StringVar(&flags.pidfile, "pidfile", "", "path to write the pid to")
	f.StringVar(&flags.statePath, "state-path", "", "path to write the state snapshot to")
	f.StringVar(&flags.tag, "tag", "", "instance tag for the process title and events")
	f.StringVar(&flags.restartCmd, "restart-cmd", "", "command overriding the reconstructed restart argv")
	f.StringVarP(&flags.environment, "environment", "e", "", "application environment, exported as APP_ENV")
	f.StringVar(&flags.dir, "dir", "", "directory to run in and restart from")
	f.BoolVar(&flags.prune, "prune", false, "re-exec under a trimmed environment before startup (cluster mode)")
	f.BoolVar(&flags.preload, "preload", false, "preload the application before forking workers")
	f.StringVar(&flags.watch, "watch", "", "restart trigger file; touching it restarts the service")
	f.StringArrayVar(&flags.via, "via", nil, "wrapper command to re-exec through on restart, repeatable")
	f.StringVarP(&flags.config, "config", "C", "", "YAML config file, overridden by flags")
	f.StringVar(&flags.journalPath, "journal", "", "event journal file (also the single-instance lock)")
	f.BoolVarP(&flags.daemon, "daemon", "d", false, "detach from the terminal")

	rootCmd.AddCommand(logCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLog(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r := journal.NewReader(f)

	for {
		ev, t, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", t.Format(time.RFC3339), journal.Render(ev))
	}
}
