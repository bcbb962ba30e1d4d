package patch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addonbump/addonbump/pkg/manifest"
	"github.com/addonbump/addonbump/pkg/types"
)

const (
	updaterJSON = `{
  "image": "linuxserver/sonarr",
  "upstream_version": "1.2.0",
  "last_update": "2024-01-01"
}
`
	configYAML = "name: Sonarr\nversion: 1.2.0\n"
)

func setup(t *testing.T, files map[string]string) (string, *manifest.Store, *types.Package) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, "p1", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	store := manifest.NewStore(root, nil)
	p, err := store.Load("p1")
	require.NoError(t, err)
	return root, store, p
}

func fixedNow(t *testing.T) {
	t.Helper()
	origNow := now
	t.Cleanup(func() { now = origNow })
	now = func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }
}

func read(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "p1", name))
	require.NoError(t, err)
	return string(data)
}

func TestApply(t *testing.T) {
	fixedNow(t)
	root, store, p := setup(t, map[string]string{
		"updater.json": updaterJSON,
		"config.yaml":  configYAML,
		"CHANGELOG.md": "## 1.2.0 (2024-01-01)\n- Update to latest version from linuxserver/sonarr\n",
	})

	result, err := NewApplier(store, true).Apply(p, "1.3.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1/updater.json", "p1/config.yaml", "p1/CHANGELOG.md"}, result.Files)
	assert.Equal(t, "1.3.0", result.Version)

	var primary map[string]string
	require.NoError(t, json.Unmarshal([]byte(read(t, root, "updater.json")), &primary))
	assert.Equal(t, "1.3.0", primary["upstream_version"])
	assert.Equal(t, "2025-03-04", primary["last_update"])
	assert.Equal(t, "name: Sonarr\nversion: 1.3.0\n", read(t, root, "config.yaml"))
	assert.Equal(t,
		"## 1.3.0 (2025-03-04)\n- Update to latest version from linuxserver/sonarr\n\n"+
			"## 1.2.0 (2024-01-01)\n- Update to latest version from linuxserver/sonarr\n",
		read(t, root, "CHANGELOG.md"))
}

func TestApplyAddsLastUpdate(t *testing.T) {
	fixedNow(t)
	root, store, p := setup(t, map[string]string{
		"updater.json": `{"image": "nginx", "upstream_version": "1.25.3"}`,
	})

	result, err := NewApplier(store, false).Apply(p, "1.25.4")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1/updater.json"}, result.Files)

	var primary map[string]string
	require.NoError(t, json.Unmarshal([]byte(read(t, root, "updater.json")), &primary))
	assert.Equal(t, "1.25.4", primary["upstream_version"])
	assert.Equal(t, "2025-03-04", primary["last_update"])
	_, err = os.Stat(filepath.Join(root, "p1", "CHANGELOG.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyReadOnlySecondary(t *testing.T) {
	fixedNow(t)
	root, store, p := setup(t, map[string]string{
		"updater.json": updaterJSON,
		"config.yaml":  configYAML,
	})
	require.NoError(t, os.Chmod(filepath.Join(root, "p1", "config.yaml"), 0o444))

	result, err := NewApplier(store, true).Apply(p, "1.3.0")
	assert.Nil(t, result)
	var partial *types.PartialWriteError
	require.ErrorAs(t, err, &partial)

	assert.Equal(t, updaterJSON, read(t, root, "updater.json"))
	assert.Equal(t, configYAML, read(t, root, "config.yaml"))
	_, err = os.Stat(filepath.Join(root, "p1", "CHANGELOG.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyInconsistentReadBack(t *testing.T) {
	fixedNow(t)
	// The config carries an add-on revision after the upstream version, so
	// it reads back as 1.3.0-2 rather than 1.3.0.
	root, store, p := setup(t, map[string]string{
		"updater.json": updaterJSON,
		"config.yaml":  "version: 1.2.0-2\n",
	})
	require.Equal(t, []string{"updater.json", "config.yaml"}, p.ManifestPaths)

	_, err := NewApplier(store, true).Apply(p, "1.3.0")
	assert.ErrorIs(t, err, ErrPartialPatch)

	assert.Equal(t, updaterJSON, read(t, root, "updater.json"))
	assert.Equal(t, "version: 1.2.0-2\n", read(t, root, "config.yaml"))
	_, err = os.Stat(filepath.Join(root, "p1", "CHANGELOG.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestRevert(t *testing.T) {
	fixedNow(t)
	root, store, p := setup(t, map[string]string{
		"updater.json": updaterJSON,
		"config.yaml":  configYAML,
	})
	applier := NewApplier(store, true)

	result, err := applier.Apply(p, "1.3.0")
	require.NoError(t, err)
	require.NoError(t, applier.Revert(result))

	assert.Equal(t, updaterJSON, read(t, root, "updater.json"))
	assert.Equal(t, configYAML, read(t, root, "config.yaml"))
	_, err = os.Stat(filepath.Join(root, "p1", "CHANGELOG.md"))
	assert.True(t, os.IsNotExist(err))

	v, found := store.ReadPinnedVersion("p1")
	assert.True(t, found)
	assert.Equal(t, "1.2.0", v)
}

func TestApplyTwiceIsIdempotentOnDisk(t *testing.T) {
	fixedNow(t)
	_, store, p := setup(t, map[string]string{
		"updater.json": updaterJSON,
		"config.yaml":  configYAML,
	})
	applier := NewApplier(store, false)

	_, err := applier.Apply(p, "1.3.0")
	require.NoError(t, err)

	reloaded, err := store.Load("p1")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", reloaded.Pinned)
	assert.Equal(t, []string{"updater.json", "config.yaml"}, reloaded.ManifestPaths)
}

func TestLastUpdateEdit(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "existing date",
			content: `{"image": "nginx", "last_update": "2024-01-01"}`,
			want:    `{"image": "nginx", "last_update": "2025-03-04"}`,
		},
		{
			name:    "null",
			content: `{"image": "nginx", "last_update": null}`,
			want:    `{"image": "nginx", "last_update": "2025-03-04"}`,
		},
		{
			name:    "spaced null",
			content: `{"last_update" :  null, "image": "nginx"}`,
			want:    `{"last_update" :  "2025-03-04", "image": "nginx"}`,
		},
		{
			name:    "missing field",
			content: `{"image": "nginx"}`,
			want:    "{\n  \"last_update\": \"2025-03-04\",\"image\": \"nginx\"}",
		},
		{
			name:    "empty object",
			content: `{}`,
			want:    "{\n  \"last_update\": \"2025-03-04\"\n}",
		},
		{name: "not an object", content: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lastUpdateEdit("2025-03-04").Apply([]byte(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestApplyReplacesNullLastUpdate(t *testing.T) {
	fixedNow(t)
	root, store, p := setup(t, map[string]string{
		"updater.json": `{"image": "nginx", "upstream_version": "1.25.3", "last_update": null}`,
	})

	_, err := NewApplier(store, false).Apply(p, "1.25.4")
	require.NoError(t, err)

	content := read(t, root, "updater.json")
	assert.Equal(t, 1, strings.Count(content, `"last_update"`))
	var primary map[string]string
	require.NoError(t, json.Unmarshal([]byte(content), &primary))
	assert.Equal(t, "2025-03-04", primary["last_update"])
}
