package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/addonbump/addonbump/pkg/types"
	"github.com/addonbump/addonbump/pkg/utils"
)

// ErrNoDescriptor is returned for package directories without any known
// descriptor file.
var ErrNoDescriptor = errors.New("no package descriptor found")

// Store gives read/write access to the package descriptors of a working copy.
type Store struct {
	fs     afero.Fs
	ignore sets.Set[string]
}

// NewStore returns a Store rooted at the given directory of the host
// filesystem.
func NewStore(root string, ignore []string) *Store {
	return NewStoreFs(afero.NewBasePathFs(afero.NewOsFs(), root), ignore)
}

// NewStoreFs returns a Store over fs, whose root is the store root.
func NewStoreFs(fs afero.Fs, ignore []string) *Store {
	return &Store{fs: fs, ignore: sets.New[string](ignore...)}
}

// packageFs scopes all file access for one package to its own subtree.
func (s *Store) packageFs(dir string) afero.Fs {
	return afero.NewBasePathFs(s.fs, filepath.Join(string(filepath.Separator), dir))
}

// ListPackages returns the package directories of the store, sorted by name.
func (s *Store) ListPackages() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, string(filepath.Separator))
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}

	var slugs []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || s.ignore.Has(name) {
			continue
		}
		slugs = append(slugs, name)
	}
	return slugs, nil
}

type descriptorSet struct {
	updater     *updaterDescriptor
	configPath  string
	config      *configDescriptor
	buildPath   string
	build       *buildDescriptor
	pinned      string
	pinnedFound bool
}

// readDescriptors parses whichever descriptors exist in the package
// directory. A descriptor that exists but cannot be parsed is an error.
func readDescriptors(pfs afero.Fs) (*descriptorSet, error) {
	ds := &descriptorSet{}

	data, err := afero.ReadFile(pfs, PrimaryDescriptor)
	switch {
	case err == nil:
		if ds.updater, err = parseUpdater(data); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("reading %s: %w", PrimaryDescriptor, err)
	}

	if ds.configPath, data, err = firstExisting(pfs, configDescriptors); err != nil {
		return nil, err
	}
	if ds.configPath != "" {
		if ds.config, err = parseConfig(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ds.configPath, err)
		}
	}

	if ds.buildPath, data, err = firstExisting(pfs, buildDescriptors); err != nil {
		return nil, err
	}
	if ds.buildPath != "" {
		if ds.build, err = parseBuild(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ds.buildPath, err)
		}
	}

	switch {
	case ds.updater != nil && ds.updater.UpstreamVersion != "":
		ds.pinned = ds.updater.UpstreamVersion
	case ds.config != nil && ds.config.Version != "":
		ds.pinned = ds.config.Version
	case ds.build != nil && ds.build.version() != "":
		ds.pinned = ds.build.version()
	}
	ds.pinnedFound = ds.pinned != ""
	return ds, nil
}

func (ds *descriptorSet) empty() bool {
	return ds.updater == nil && ds.config == nil && ds.build == nil
}

func firstExisting(pfs afero.Fs, names []string) (string, []byte, error) {
	for _, name := range names {
		data, err := afero.ReadFile(pfs, name)
		if err == nil {
			return name, data, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	return "", nil, nil
}

// Load rebuilds a Package from the descriptors in its directory. Every
// failure is a *types.DataError carrying the skip reason.
func (s *Store) Load(dir string) (*types.Package, error) {
	dataErr := func(reason types.SkipReason, err error) error {
		return &types.DataError{Slug: dir, Reason: reason, Err: err}
	}

	pfs := s.packageFs(dir)
	ds, err := readDescriptors(pfs)
	if err != nil {
		return nil, dataErr(types.SkipMissingManifest, err)
	}
	if ds.empty() {
		return nil, dataErr(types.SkipMissingManifest, ErrNoDescriptor)
	}
	if ds.updater == nil {
		return nil, dataErr(types.SkipMissingManifest, fmt.Errorf("%s not found", PrimaryDescriptor))
	}
	if !ds.pinnedFound {
		return nil, dataErr(types.SkipMissingManifest, errors.New("no version field in any descriptor"))
	}
	if ds.updater.Image == "" {
		return nil, dataErr(types.SkipMissingManifest, fmt.Errorf("%s has no image", PrimaryDescriptor))
	}

	ref, err := utils.ParseImage(ds.updater.Image)
	if err != nil {
		return nil, dataErr(types.SkipInvalidReference, err)
	}

	pkg := &types.Package{
		Slug:       dir,
		Dir:        dir,
		Image:      ds.updater.Image,
		Registry:   ref.Kind(types.RegistryKind(strings.ToLower(ds.updater.Registry))),
		Pinned:     ds.pinned,
		Policy:     ds.updater.policy(),
		Paused:     ds.updater.Paused.or(false),
		LastUpdate: ds.updater.LastUpdate,
	}
	if ds.updater.Slug != "" {
		pkg.Slug = ds.updater.Slug
	}

	// Only descriptors that actually embed the pinned version take part in
	// the update; the rest are left alone.
	for _, name := range []string{PrimaryDescriptor, ds.configPath, ds.buildPath} {
		if name == "" {
			continue
		}
		data, err := afero.ReadFile(pfs, name)
		if err != nil {
			return nil, dataErr(types.SkipMissingManifest, fmt.Errorf("reading %s: %w", name, err))
		}
		if ContainsVersion(data, pkg.Pinned) {
			pkg.ManifestPaths = append(pkg.ManifestPaths, name)
		}
	}

	log.WithField("package", pkg.Slug).Debugf("loaded %s pinned at %s from %v", pkg.Image, pkg.Pinned, pkg.ManifestPaths)
	return pkg, nil
}

// ReadPinnedVersion returns the first version found in the package's
// descriptors, in precedence order.
func (s *Store) ReadPinnedVersion(dir string) (string, bool) {
	ds, err := readDescriptors(s.packageFs(dir))
	if err != nil {
		log.WithField("package", dir).Debugf("reading pinned version: %v", err)
		return "", false
	}
	return ds.pinned, ds.pinnedFound
}

// VersionAt returns the version field recorded in one descriptor of a package.
func (s *Store) VersionAt(p *types.Package, name string) (string, error) {
	data, err := afero.ReadFile(s.packageFs(p.Dir), name)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return versionIn(name, data)
}

// ReadFile returns the content of a file in the package directory.
func (s *Store) ReadFile(p *types.Package, name string) ([]byte, error) {
	return afero.ReadFile(s.packageFs(p.Dir), name)
}

// StorePaths maps package-relative names to store-relative paths.
func StorePaths(p *types.Package, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.ToSlash(filepath.Join(p.Dir, name)))
	}
	return out
}
