package launch

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Identity captures everything needed to re-invoke the exact same process
// image: the original argv, the directory to chdir into before re-exec, and
// the reconstructed restart argv.
//
// The restart argv is computed once at startup and reused verbatim on every
// restart: the argv[0] existence check and the working directory are only
// meaningful relative to the original launch location.
type Identity struct {
	// Argv is the original argv as invoked, argv[0] included.
	Argv []string

	// RestartDir is the working directory to chdir into before re-exec.
	RestartDir string

	restartArgv []string
}

// NewIdentity resolves the current process's identity from the OS and the
// given options.
func NewIdentity(opts *Options) (*Identity, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve executable path")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve working directory")
	}

	dir := opts.Dir
	if dir == "" {
		dir = resolveRestartDir(cwd, os.Getenv("PWD"))
	}

	argv := make([]string, len(os.Args))
	copy(argv, os.Args)

	id := &Identity{
		Argv:       argv,
		RestartDir: dir,
	}
	id.restartArgv = restartArgv(restartInputs{
		Argv:        argv,
		Executable:  exe,
		Argv0Exists: fileExists(argv[0]),
		LibraryPath: os.Getenv("LD_LIBRARY_PATH"),
		Via:         opts.Via,
		RestartCmd:  opts.RestartCmd,
	})

	return id, nil
}

// RestartArgv returns the cached re-invocation command line.
func (id *Identity) RestartArgv() []string {
	return id.restartArgv
}

// resolveRestartDir prefers the logical directory reported by the environment
// over the OS-reported one when both name the same filesystem entry. This
// keeps restarts working from symlink-based deploy directories, where the
// symlink target changes between deploys but the logical path does not.
func resolveRestartDir(cwd, pwdEnv string) string {
	if pwdEnv == "" || pwdEnv == cwd {
		return cwd
	}

	cwdStat, err := os.Stat(cwd)
	if err != nil {
		return cwd
	}
	pwdStat, err := os.Stat(pwdEnv)
	if err != nil {
		return cwd
	}

	if os.SameFile(cwdStat, pwdStat) {
		return pwdEnv
	}
	return cwd
}

// restartInputs are the inputs the restart argv is a pure function of.
type restartInputs struct {
	Argv        []string
	Executable  string
	Argv0Exists bool
	LibraryPath string
	Via         []string
	RestartCmd  string
}

// restartArgv reconstructs the command line that re-invokes the same program
// image. The same inputs always yield the same argv.
func restartArgv(in restartInputs) []string {
	tail := in.Argv[1:]

	// A configured restart command wins entirely over reconstruction.
	if in.RestartCmd != "" {
		return append(strings.Fields(in.RestartCmd), tail...)
	}

	// If argv[0] still names a file relative to the launch directory, reuse
	// it verbatim; otherwise it was resolved via PATH lookup and the resolved
	// executable path substitutes for it.
	prog := in.Executable
	if in.Argv0Exists {
		prog = in.Argv[0]
	}

	argv := make([]string, 0, len(in.Via)+len(in.Argv)+2)

	// An injected library search path is pinned by re-execing through env(1)
	// so restarted children retain it even if the surrounding environment is
	// rewritten.
	if in.LibraryPath != "" {
		argv = append(argv, "/usr/bin/env", "LD_LIBRARY_PATH="+in.LibraryPath)
	}

	argv = append(argv, in.Via...)
	argv = append(argv, prog)
	return append(argv, tail...)
}

func fileExists(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && !stat.IsDir()
}
