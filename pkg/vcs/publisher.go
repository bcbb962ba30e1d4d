package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/types"
)

const remoteName = "origin"

// Publisher keeps the working copy in step with the remote branch and
// records one commit per updated package.
type Publisher struct {
	path    string
	url     string
	branch  string
	auth    transport.AuthMethod
	author  string
	email   string
	timeout time.Duration
	now     func() time.Time

	repo    *git.Repository
	commits int
}

// New returns a Publisher for the repository section of the config. Without
// a URL the checkout at path is used as-is and nothing is pushed.
func New(cfg config.RepoConfig) *Publisher {
	p := &Publisher{
		path:    cfg.Path,
		url:     cfg.URL,
		branch:  cfg.Branch,
		author:  cfg.AuthorName,
		email:   cfg.AuthorEmail,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
	if cfg.Token != "" {
		p.auth = &http.BasicAuth{Username: cfg.Username, Password: cfg.Token}
	}
	return p
}

// Local reports whether the publisher works without a remote.
func (p *Publisher) Local() bool {
	return p.url == ""
}

func (p *Publisher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Sync clones the branch when the checkout is missing, otherwise fetches it
// and hard-resets the worktree onto origin/<branch>, dropping untracked
// files. Any failure is a *types.FatalRepositoryError.
func (p *Publisher) Sync(ctx context.Context) error {
	p.commits = 0
	if err := p.sync(ctx); err != nil {
		return &types.FatalRepositoryError{Op: "sync", Err: err}
	}
	return nil
}

func (p *Publisher) sync(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	if p.Local() {
		repo, err := git.PlainOpen(p.path)
		if err != nil {
			return errors.Wrapf(err, "failed to open repository at %s", p.path)
		}
		p.repo = repo
		log.Debugf("using local checkout %s", p.path)
		return nil
	}

	branchRef := plumbing.NewBranchReferenceName(p.branch)
	if _, err := os.Stat(filepath.Join(p.path, git.GitDirName)); os.IsNotExist(err) {
		log.Infof("cloning %s (%s) into %s", p.url, p.branch, p.path)
		repo, err := git.PlainCloneContext(ctx, p.path, false, &git.CloneOptions{
			URL:           p.url,
			Auth:          p.auth,
			ReferenceName: branchRef,
			SingleBranch:  true,
		})
		if err != nil {
			return errors.Wrap(err, "failed to clone repository")
		}
		p.repo = repo
		return nil
	}

	repo, err := git.PlainOpen(p.path)
	if err != nil {
		return errors.Wrapf(err, "failed to open repository at %s", p.path)
	}

	remoteRef := plumbing.NewRemoteReferenceName(remoteName, p.branch)
	refSpec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", branchRef, remoteRef))
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RemoteURL:  p.url,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       p.auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return errors.Wrap(err, "failed to fetch")
	}

	remote, err := repo.Reference(remoteRef, true)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", remoteRef)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "failed to get worktree")
	}

	checkout := &git.CheckoutOptions{Branch: branchRef, Force: true}
	if _, err := repo.Reference(branchRef, true); err != nil {
		checkout.Create = true
		checkout.Hash = remote.Hash()
	}
	if err := wt.Checkout(checkout); err != nil {
		return errors.Wrapf(err, "failed to checkout %s", p.branch)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remote.Hash(), Mode: git.HardReset}); err != nil {
		return errors.Wrapf(err, "failed to reset to %s", remoteRef)
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return errors.Wrap(err, "failed to clean worktree")
	}

	p.repo = repo
	log.Infof("synced %s to %s at %s", p.path, remoteRef, remote.Hash())
	return nil
}

// CommitMessage is the message recorded for an updated package.
func CommitMessage(o types.UpdateOutcome) string {
	return fmt.Sprintf("%s: update %s from %s to %s", o.Slug, o.Image, o.From, o.To)
}

// Commit stages exactly the files of o and records them in one commit.
func (p *Publisher) Commit(_ context.Context, o types.UpdateOutcome) error {
	if p.repo == nil {
		return errors.New("repository not synced")
	}
	if len(o.Files) == 0 {
		return errors.Errorf("nothing to commit for %s", o.Slug)
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "failed to get worktree")
	}

	for _, f := range o.Files {
		if _, err := wt.Add(f); err != nil {
			p.unstage(wt)
			return errors.Wrapf(err, "failed to stage %s", f)
		}
	}

	hash, err := wt.Commit(CommitMessage(o), &git.CommitOptions{
		Author: &object.Signature{Name: p.author, Email: p.email, When: p.now()},
	})
	if err != nil {
		p.unstage(wt)
		return errors.Wrap(err, "failed to commit")
	}

	p.commits++
	log.WithField("package", o.Slug).Infof("committed %s", hash)
	return nil
}

// unstage resets the index to HEAD so a failed commit leaves nothing staged.
func (p *Publisher) unstage(wt *git.Worktree) {
	if err := wt.Reset(&git.ResetOptions{Mode: git.MixedReset}); err != nil {
		log.Warnf("failed to reset index: %v", err)
	}
}

// PushAll pushes the branch once. It is a no-op in local mode or when no
// commit was made since the last Sync.
func (p *Publisher) PushAll(ctx context.Context) error {
	if p.Local() {
		log.Info("local mode, not pushing")
		return nil
	}
	if p.commits == 0 {
		log.Debug("no commits to push")
		return nil
	}
	if p.repo == nil {
		return &types.FatalRepositoryError{Op: "push", Err: errors.New("repository not synced")}
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	branchRef := plumbing.NewBranchReferenceName(p.branch)
	err := p.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RemoteURL:  p.url,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", branchRef, branchRef))},
		Auth:       p.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return &types.FatalRepositoryError{Op: "push", Err: errors.Wrapf(err, "failed to push %d commits", p.commits)}
	}

	log.Infof("pushed %d commits to %s", p.commits, p.branch)
	p.commits = 0
	return nil
}
