package launch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRestartArgv(t *testing.T) {
	base := restartInputs{
		Argv:        []string{"./bin/app", "--config", "app.yml"},
		Executable:  "/srv/app/bin/app",
		Argv0Exists: true,
	}

	t.Run("argv0 exists", func(t *testing.T) {
		got := restartArgv(base)
		require.Equal(t, []string{"./bin/app", "--config", "app.yml"}, got)
	})

	t.Run("argv0 resolved via path lookup", func(t *testing.T) {
		in := base
		in.Argv = []string{"app", "--config", "app.yml"}
		in.Argv0Exists = false

		got := restartArgv(in)
		require.Equal(t, []string{"/srv/app/bin/app", "--config", "app.yml"}, got)
	})

	t.Run("library path re-injected", func(t *testing.T) {
		in := base
		in.LibraryPath = "/opt/lib"

		got := restartArgv(in)
		require.Equal(t, []string{
			"/usr/bin/env", "LD_LIBRARY_PATH=/opt/lib",
			"./bin/app", "--config", "app.yml",
		}, got)
	})

	t.Run("wrapper command prepended", func(t *testing.T) {
		in := base
		in.Via = []string{"/usr/bin/isolate", "--strict"}

		got := restartArgv(in)
		require.Equal(t, []string{
			"/usr/bin/isolate", "--strict",
			"./bin/app", "--config", "app.yml",
		}, got)
	})

	t.Run("restart command override wins entirely", func(t *testing.T) {
		in := base
		in.LibraryPath = "/opt/lib"
		in.Via = []string{"/usr/bin/isolate"}
		in.RestartCmd = "/usr/local/bin/relauncher --fast"

		got := restartArgv(in)
		require.Equal(t, []string{
			"/usr/local/bin/relauncher", "--fast", "--config", "app.yml",
		}, got)
	})

	t.Run("pure function", func(t *testing.T) {
		in := base
		in.LibraryPath = "/opt/lib"
		in.Via = []string{"/usr/bin/isolate"}

		require.Equal(t, restartArgv(in), restartArgv(in))
	})
}

func TestResolveRestartDir(t *testing.T) {
	real := t.TempDir()

	link := filepath.Join(t.TempDir(), "current")
	require.NoError(t, os.Symlink(real, link))

	t.Run("prefers logical dir for the same entry", func(t *testing.T) {
		require.Equal(t, link, resolveRestartDir(real, link))
	})

	t.Run("keeps cwd for a different entry", func(t *testing.T) {
		other := t.TempDir()
		require.Equal(t, real, resolveRestartDir(real, other))
	})

	t.Run("keeps cwd without env", func(t *testing.T) {
		require.Equal(t, real, resolveRestartDir(real, ""))
	})

	t.Run("keeps cwd for a dangling env path", func(t *testing.T) {
		require.Equal(t, real, resolveRestartDir(real, filepath.Join(real, "missing")))
	})
}
