package cmd

import (
	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/manifest"
	"github.com/addonbump/addonbump/pkg/notify"
	"github.com/addonbump/addonbump/pkg/patch"
	"github.com/addonbump/addonbump/pkg/registry"
	"github.com/addonbump/addonbump/pkg/update"
	"github.com/addonbump/addonbump/pkg/vcs"
)

// newCoordinator assembles the run pipeline from cfg.
func newCoordinator(cfg *config.Config) (*update.Coordinator, error) {
	notifier, err := notify.New(cfg.Notify)
	if err != nil {
		return nil, err
	}

	store := manifest.NewStore(cfg.Repo.Path, cfg.Store.Ignore)
	return update.New(
		cfg,
		store,
		registry.New(cfg.Registry),
		patch.NewApplier(store, cfg.Patch.Changelog),
		vcs.New(cfg.Repo),
		notifier,
	), nil
}
