package launch

import (
	"os"
	"path/filepath"
	"strings"
)

// prunedEnv marks a process that has already been re-executed under the
// trimmed environment, so the new image does not attempt to prune again.
const prunedEnv = "SVCLAUNCH_PRUNED"

// pruneHelperName is the companion re-exec helper shipped alongside the
// launcher binary.
const pruneHelperName = "svclaunch-exec"

// prunedEnvAllowlist is the minimal set of environment variables carried into
// a pruned re-exec, besides the launcher's own SVCLAUNCH_* variables.
var prunedEnvAllowlist = []string{
	"PATH", "HOME", "TMPDIR", "TZ", "USER", "PWD", "LANG", "LD_LIBRARY_PATH", "APP_ENV",
}

// maybePruneReExec re-executes the process under a trimmed dependency
// environment, once, early in startup. It runs only when pruning is
// requested, cluster mode is active, and the app is not preloaded (pruning
// after preload would be unsafe: the pruned set must already match what was
// loaded). A missing helper is non-fatal: startup continues unpruned.
//
// This is a one-shot startup transform, distinct from the restart path.
func (l *Launcher) maybePruneReExec() error {
	if !l.opts.PruneDeps || !l.opts.Clustered() || l.opts.PreloadApp {
		return nil
	}
	if os.Getenv(prunedEnv) != "" {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		l.j.Write(&EventPruneSkipped{Reason: "cannot resolve executable: " + err.Error()})
		return nil
	}

	helper := filepath.Join(filepath.Dir(exe), pruneHelperName)
	if !fileExists(helper) {
		l.j.Write(&EventPruneSkipped{Reason: "helper " + helper + " not found"})
		return nil
	}

	env := prunedEnviron(os.Environ())
	env = append(env, prunedEnv+"=1")

	argv := append([]string{helper}, l.identity.Argv...)
	return replaceImage(l.identity.RestartDir, argv, env)
}

// prunedEnviron filters an environment down to the allowlist plus the
// launcher's own variables.
func prunedEnviron(environ []string) []string {
	keep := make([]string, 0, len(prunedEnvAllowlist))

	for _, kv := range environ {
		k, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(k, "SVCLAUNCH_") {
			keep = append(keep, kv)
			continue
		}
		for _, allowed := range prunedEnvAllowlist {
			if k == allowed {
				keep = append(keep, kv)
				break
			}
		}
	}

	return keep
}
