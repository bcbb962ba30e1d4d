package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/types"
)

var signature = &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Unix(1700000000, 0)}

// requireGitBinaries skips tests that go through the file transport, which
// shells out to the git server binaries.
func requireGitBinaries(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"git-upload-pack", "git-receive-pack"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// initRepo creates a non-bare repository on main with one commit.
func initRepo(t *testing.T, dir string, files map[string]string) *git.Repository {
	t.Helper()
	repo, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		writeFile(t, dir, name, content)
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("seed", &git.CommitOptions{Author: signature})
	require.NoError(t, err)
	return repo
}

// newRemote returns the path of a bare repository seeded with files on main.
func newRemote(t *testing.T, files map[string]string) string {
	t.Helper()
	requireGitBinaries(t)

	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInitWithOptions(remoteDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
		Bare:        true,
	})
	require.NoError(t, err)

	seed := initRepo(t, filepath.Join(t.TempDir(), "seed"), files)
	_, err = seed.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteDir}})
	require.NoError(t, err)
	require.NoError(t, seed.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{"refs/heads/main:refs/heads/main"},
	}))
	return remoteDir
}

func newPublisher(path, url string) *Publisher {
	return New(config.RepoConfig{
		Path:        path,
		URL:         url,
		Branch:      "main",
		AuthorName:  "addonbump",
		AuthorEmail: "addonbump@example.com",
		Timeout:     time.Minute,
	})
}

func headMessage(t *testing.T, repo *git.Repository) string {
	t.Helper()
	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	return commit.Message
}

func TestCommitMessage(t *testing.T) {
	o := types.Updated("p1", "linuxserver/sonarr", "1.2.0", "1.3.0")
	assert.Equal(t, "p1: update linuxserver/sonarr from 1.2.0 to 1.3.0", CommitMessage(o))
}

func TestLocalMode(t *testing.T) {
	dir := t.TempDir()
	repo := initRepo(t, dir, map[string]string{"p1/updater.json": `{"upstream_version": "1.2.0"}`})

	pub := newPublisher(dir, "")
	require.True(t, pub.Local())
	require.NoError(t, pub.Sync(context.Background()))

	writeFile(t, dir, "p1/updater.json", `{"upstream_version": "1.3.0"}`)
	writeFile(t, dir, "p1/CHANGELOG.md", "## 1.3.0\n")
	writeFile(t, dir, "unrelated.txt", "left alone")

	o := types.Updated("p1", "linuxserver/sonarr", "1.2.0", "1.3.0")
	o.Files = []string{"p1/updater.json", "p1/CHANGELOG.md"}
	require.NoError(t, pub.Commit(context.Background(), o))
	assert.Equal(t, "p1: update linuxserver/sonarr from 1.2.0 to 1.3.0", headMessage(t, repo))

	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "addonbump", commit.Author.Name)
	_, err = commit.File("p1/CHANGELOG.md")
	assert.NoError(t, err)
	_, err = commit.File("unrelated.txt")
	assert.Error(t, err, "only the outcome files are committed")

	assert.NoError(t, pub.PushAll(context.Background()))
}

func TestLocalModeNotARepository(t *testing.T) {
	err := newPublisher(t.TempDir(), "").Sync(context.Background())
	assert.True(t, types.IsFatal(err))
}

func TestCommitBeforeSync(t *testing.T) {
	o := types.Updated("p1", "img", "1", "2")
	o.Files = []string{"p1/updater.json"}
	assert.Error(t, newPublisher(t.TempDir(), "").Commit(context.Background(), o))
}

func TestSyncClonesAndResets(t *testing.T) {
	remote := newRemote(t, map[string]string{"p1/updater.json": `{"upstream_version": "1.2.0"}`})
	checkout := filepath.Join(t.TempDir(), "checkout")

	pub := newPublisher(checkout, remote)
	require.NoError(t, pub.Sync(context.Background()))
	data, err := os.ReadFile(filepath.Join(checkout, "p1/updater.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"upstream_version": "1.2.0"}`, string(data))

	// Local edits and stray files disappear on the next sync.
	writeFile(t, checkout, "p1/updater.json", "garbage")
	writeFile(t, checkout, "stray/file.txt", "stray")
	require.NoError(t, pub.Sync(context.Background()))

	data, err = os.ReadFile(filepath.Join(checkout, "p1/updater.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"upstream_version": "1.2.0"}`, string(data))
	_, err = os.Stat(filepath.Join(checkout, "stray/file.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSyncUnreachableRemote(t *testing.T) {
	requireGitBinaries(t)
	pub := newPublisher(filepath.Join(t.TempDir(), "checkout"), filepath.Join(t.TempDir(), "missing.git"))
	err := pub.Sync(context.Background())
	var fatal *types.FatalRepositoryError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "sync", fatal.Op)
}

func TestCommitAndPushAll(t *testing.T) {
	remote := newRemote(t, map[string]string{
		"p1/updater.json": `{"upstream_version": "1.2.0"}`,
		"p4/updater.json": `{"upstream_version": "3.0.0"}`,
	})
	checkout := filepath.Join(t.TempDir(), "checkout")
	pub := newPublisher(checkout, remote)
	require.NoError(t, pub.Sync(context.Background()))

	// Nothing committed yet, so nothing is pushed.
	require.NoError(t, pub.PushAll(context.Background()))

	for _, c := range []struct{ slug, from, to string }{{"p1", "1.2.0", "1.3.0"}, {"p4", "3.0.0", "3.1.0"}} {
		writeFile(t, checkout, c.slug+"/updater.json", `{"upstream_version": "`+c.to+`"}`)
		o := types.Updated(c.slug, "linuxserver/"+c.slug, c.from, c.to)
		o.Files = []string{c.slug + "/updater.json"}
		require.NoError(t, pub.Commit(context.Background(), o))
	}
	require.NoError(t, pub.PushAll(context.Background()))

	bare, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := bare.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	commit, err := bare.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "p4: update linuxserver/p4 from 3.0.0 to 3.1.0", commit.Message)
	parent, err := commit.Parent(0)
	require.NoError(t, err)
	assert.Equal(t, "p1: update linuxserver/p1 from 1.2.0 to 1.3.0", parent.Message)
}

func TestPushFailureKeepsLocalCommits(t *testing.T) {
	remote := newRemote(t, map[string]string{"p1/updater.json": `{"upstream_version": "1.2.0"}`})
	checkout := filepath.Join(t.TempDir(), "checkout")
	pub := newPublisher(checkout, remote)
	require.NoError(t, pub.Sync(context.Background()))

	writeFile(t, checkout, "p1/updater.json", `{"upstream_version": "1.3.0"}`)
	o := types.Updated("p1", "linuxserver/p1", "1.2.0", "1.3.0")
	o.Files = []string{"p1/updater.json"}
	require.NoError(t, pub.Commit(context.Background(), o))

	require.NoError(t, os.RemoveAll(remote))
	err := pub.PushAll(context.Background())
	var fatal *types.FatalRepositoryError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "push", fatal.Op)

	repo, err := git.PlainOpen(checkout)
	require.NoError(t, err)
	assert.Equal(t, "p1: update linuxserver/p1 from 1.2.0 to 1.3.0", headMessage(t, repo))
}
