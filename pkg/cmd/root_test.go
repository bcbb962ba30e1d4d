package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addonbump/addonbump/pkg/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCmd()
	found := map[string]bool{}
	for _, c := range root.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"run", "daemon", "version"} {
		assert.True(t, found[name], "missing command %s", name)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))
}

func TestVersion(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}

func TestRunLocalEmptyRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	t.Setenv("ADDONBUMP_REPO_PATH", dir)

	_, err = execute(t, "run", "--dry-run")
	assert.NoError(t, err)
}

func TestRunFatalWithoutRepository(t *testing.T) {
	t.Setenv("ADDONBUMP_REPO_PATH", t.TempDir())

	_, err := execute(t, "run")
	assert.True(t, types.IsFatal(err))
}

func TestRunConfigFile(t *testing.T) {
	repo := t.TempDir()
	_, err := git.PlainInit(repo, false)
	require.NoError(t, err)

	cfgFile := filepath.Join(t.TempDir(), "addonbump.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("repo:\n  path: "+repo+"\nregistry:\n  workers: 2\n"), 0o644))

	_, err = execute(t, "run", "--config", cfgFile, "--only", "p1")
	assert.NoError(t, err)
}

func TestRunInvalidConfig(t *testing.T) {
	t.Setenv("ADDONBUMP_REGISTRY_PAGE_SIZE", "0")
	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "registry.page_size")
}

func TestRunMissingConfigFile(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")
}
