package update

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/patch"
	"github.com/addonbump/addonbump/pkg/types"
	"github.com/addonbump/addonbump/pkg/version"
)

// Store supplies the packages of the working copy.
type Store interface {
	ListPackages() ([]string, error)
	Load(dir string) (*types.Package, error)
}

// Registry lists the published tags of an image.
type Registry interface {
	ListTags(ctx context.Context, image string, kind types.RegistryKind, pageSize int) (types.TagSet, error)
}

// Patcher writes a new version across a package's manifests.
type Patcher interface {
	Apply(p *types.Package, newVersion string) (*patch.Result, error)
	Revert(r *patch.Result) error
}

// Publisher keeps the working copy in sync with the remote.
type Publisher interface {
	Sync(ctx context.Context) error
	Commit(ctx context.Context, o types.UpdateOutcome) error
	PushAll(ctx context.Context) error
}

// Notifier delivers the run summary.
type Notifier interface {
	Notify(ctx context.Context, s *types.RunSummary) error
}

// Options are the per-run knobs.
type Options struct {
	DryRun bool
	// Only restricts the run to the named packages (slug or directory).
	Only []string
}

// Coordinator drives one run: sync, lookups, per-package patch and commit,
// push and notification.
type Coordinator struct {
	store     Store
	registry  Registry
	patcher   Patcher
	publisher Publisher
	notifier  Notifier

	workers  int
	pageSize int
	now      func() time.Time

	// mu is held for the whole of a run.
	mu sync.Mutex
}

// New wires a Coordinator from its collaborators.
func New(cfg *config.Config, store Store, registry Registry, patcher Patcher, publisher Publisher, notifier Notifier) *Coordinator {
	return &Coordinator{
		store:     store,
		registry:  registry,
		patcher:   patcher,
		publisher: publisher,
		notifier:  notifier,
		workers:   cfg.Registry.Workers,
		pageSize:  cfg.Registry.PageSize,
		now:       time.Now,
	}
}

type entry struct {
	dir     string
	pkg     *types.Package
	outcome *types.UpdateOutcome

	tags      types.TagSet
	lookupErr error
}

// Run performs one complete run. The summary is always returned; the error
// is ErrRunInProgress or a *types.FatalRepositoryError.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*types.RunSummary, error) {
	if !c.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer c.mu.Unlock()

	summary := types.NewRunSummary(c.now(), opts.DryRun)
	log.Infof("starting update run (dry-run: %t)", opts.DryRun)

	if err := c.iterate(ctx, opts, summary); err != nil {
		summary.FatalErr = err
	}
	summary.Duration = c.now().Sub(summary.Started)

	// Delivery must survive cancellation of the run.
	if err := c.notifier.Notify(context.WithoutCancel(ctx), summary); err != nil {
		log.Warnf("notification not delivered: %v", err)
	}

	log.Infof("run finished in %s: %d updated, %d unchanged, %d skipped",
		summary.Duration.Round(time.Millisecond), len(summary.Updated()), len(summary.Unchanged()), len(summary.Skipped()))
	if summary.FatalErr != nil {
		log.Errorf("run failed: %v", summary.FatalErr)
	}
	return summary, summary.FatalErr
}

func (c *Coordinator) iterate(ctx context.Context, opts Options, summary *types.RunSummary) error {
	if err := c.publisher.Sync(ctx); err != nil {
		return fatal("sync", err)
	}

	dirs, err := c.store.ListPackages()
	if err != nil {
		return fatal("list packages", err)
	}

	entries := c.load(dirs, opts.Only)
	c.lookup(ctx, entries)

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			for _, rest := range entries[i:] {
				slug, image := rest.dir, ""
				if rest.pkg != nil {
					slug, image = rest.pkg.Slug, rest.pkg.Image
				}
				summary.Add(types.Skipped(slug, image, types.SkipCancelled, err))
			}
			log.Warnf("run cancelled, %d packages not processed", len(entries)-i)
			break
		}
		o := c.process(ctx, e, opts.DryRun)
		o.DryRun = opts.DryRun
		summary.Add(o)
	}

	if opts.DryRun || len(summary.Updated()) == 0 {
		return nil
	}
	// Commits already made are pushed even if the run was cancelled.
	if err := c.publisher.PushAll(context.WithoutCancel(ctx)); err != nil {
		summary.PublishErr = err
		return fatal("push", err)
	}
	return nil
}

// load reads every package and applies the --only filter.
func (c *Coordinator) load(dirs []string, only []string) []*entry {
	filter := sets.New[string](only...)
	entries := make([]*entry, 0, len(dirs))
	for _, dir := range dirs {
		e := &entry{dir: dir}
		p, err := c.store.Load(dir)
		if err != nil {
			if filter.Len() > 0 && !filter.Has(dir) {
				continue
			}
			o := types.Skipped(dir, "", skipReason(err), err)
			e.outcome = &o
			log.WithField("package", dir).Warnf("skipping: %v", err)
		} else {
			if filter.Len() > 0 && !filter.Has(p.Slug) && !filter.Has(dir) {
				continue
			}
			e.pkg = p
		}
		entries = append(entries, e)
	}
	return entries
}

func skipReason(err error) types.SkipReason {
	var dataErr *types.DataError
	if errors.As(err, &dataErr) {
		return dataErr.Reason
	}
	return types.SkipMissingManifest
}

// lookup queries the registry for all runnable packages, with at most
// c.workers requests in flight.
func (c *Coordinator) lookup(ctx context.Context, entries []*entry) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.workers, 1))
	for _, e := range entries {
		if e.pkg == nil || e.pkg.Paused {
			continue
		}
		e := e
		g.Go(func() error {
			pageSize := c.pageSize
			if e.pkg.Policy.ListSize > 0 {
				pageSize = e.pkg.Policy.ListSize
			}
			e.tags, e.lookupErr = c.registry.ListTags(gctx, e.pkg.Image, e.pkg.Registry, pageSize)
			return nil
		})
	}
	_ = g.Wait()
}

// process runs one package through resolve, plan, patch and commit.
func (c *Coordinator) process(ctx context.Context, e *entry, dryRun bool) types.UpdateOutcome {
	if e.outcome != nil {
		return *e.outcome
	}
	p := e.pkg
	logger := log.WithField("package", p.Slug)

	if p.Paused {
		logger.Info("paused, not checking for updates")
		return types.Skipped(p.Slug, p.Image, types.SkipPaused, nil)
	}
	if e.lookupErr != nil {
		logger.Warnf("registry lookup failed: %v", e.lookupErr)
		return types.Skipped(p.Slug, p.Image, types.SkipRegistryFailure, e.lookupErr)
	}

	candidate, found, err := resolve(e.tags, p)
	if err != nil {
		logger.Errorf("resolving candidate: %v", err)
		return types.Skipped(p.Slug, p.Image, types.SkipResolverFailure, err)
	}

	o := Plan(p, p.Pinned, candidate, found)
	switch o.Kind {
	case types.OutcomeUnchanged:
		logger.Infof("up to date at %s", p.Pinned)
		return o
	case types.OutcomeSkipped:
		logger.Infof("skipped: %s", o.Reason)
		return o
	}

	if dryRun {
		logger.Infof("would update %s -> %s", o.From, o.To)
		return o
	}

	result, err := c.patcher.Apply(p, o.To)
	if err != nil {
		logger.Errorf("patching manifests: %v", err)
		s := types.Skipped(p.Slug, p.Image, types.SkipPartialPatch, err)
		s.From, s.To = o.From, o.To
		return s
	}
	o.Files = result.Files

	if err := c.publisher.Commit(ctx, o); err != nil {
		logger.Errorf("committing update: %v", err)
		if rerr := c.patcher.Revert(result); rerr != nil {
			logger.Errorf("reverting manifests after failed commit: %v", rerr)
		}
		s := types.Skipped(p.Slug, p.Image, types.SkipCommitFailed, err)
		s.From, s.To = o.From, o.To
		return s
	}

	logger.Infof("updated %s -> %s", o.From, o.To)
	return o
}

// resolve applies the selection policy, turning a resolver panic on
// unexpected tag data into an error scoped to the package.
func resolve(tags types.TagSet, p *types.Package) (candidate string, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panicked: %v", r)
		}
	}()
	if tags.Tags == nil {
		return "", false, nil
	}
	candidate, found = version.Resolve(tags, p.Policy, p.Pinned)
	return candidate, found, nil
}

func fatal(op string, err error) error {
	if types.IsFatal(err) {
		return err
	}
	return &types.FatalRepositoryError{Op: op, Err: err}
}
