package patch

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/addonbump/addonbump/pkg/manifest"
	"github.com/addonbump/addonbump/pkg/types"
)

const (
	changelogFile = "CHANGELOG.md"
	dateLayout    = "2006-01-02"
)

var lastUpdateField = regexp.MustCompile(`("last_update"\s*:\s*)(?:"[^"]*"|null)`)

// now is swapped in tests.
var now = time.Now

// Result describes a patch that was written to disk.
type Result struct {
	Package *types.Package
	Version string
	// Files are store-relative, ready to be staged.
	Files []string

	names     []string
	originals map[string][]byte
	absent    map[string]bool
}

// Applier rewrites the version of a package across its manifest set.
type Applier struct {
	store     *manifest.Store
	changelog bool
}

// NewApplier returns an Applier writing through store.
func NewApplier(store *manifest.Store, changelog bool) *Applier {
	return &Applier{store: store, changelog: changelog}
}

// Apply writes newVersion into every manifest path of p, stamps last_update
// and, when enabled, prepends a changelog entry. The write is all or
// nothing; on failure the error is a *types.PartialWriteError.
func (a *Applier) Apply(p *types.Package, newVersion string) (*Result, error) {
	logger := log.WithField("package", p.Slug)
	date := now().UTC().Format(dateLayout)

	edits := []manifest.Edit{lastUpdateEdit(date)}
	if a.changelog {
		edits = append(edits, changelogEdit(p.Image, newVersion, date))
	}

	originals, absent := map[string][]byte{}, map[string]bool{}
	for _, name := range append(append([]string{}, p.ManifestPaths...), editNames(edits)...) {
		data, err := a.store.ReadFile(p, name)
		switch {
		case err == nil:
			originals[name] = data
		case os.IsNotExist(err):
			absent[name] = true
		default:
			return nil, &types.PartialWriteError{Slug: p.Slug, Err: err}
		}
	}

	names, err := a.store.WriteVersion(p, newVersion, edits...)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Package:   p,
		Version:   newVersion,
		Files:     manifest.StorePaths(p, names),
		names:     names,
		originals: originals,
		absent:    absent,
	}

	if err := a.verify(p, newVersion); err != nil {
		if rerr := a.Revert(result); rerr != nil {
			logger.Errorf("reverting inconsistent patch: %v", rerr)
		}
		return nil, &types.PartialWriteError{Slug: p.Slug, Err: err}
	}

	logger.Infof("patched %s -> %s in %v", p.Pinned, newVersion, names)
	return result, nil
}

// verify reads every manifest path back and checks it reports v.
func (a *Applier) verify(p *types.Package, v string) error {
	for _, name := range p.ManifestPaths {
		got, err := a.store.VersionAt(p, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPartialPatch, name, err)
		}
		if got != v {
			return fmt.Errorf("%w: %s reports %q, want %q", ErrPartialPatch, name, got, v)
		}
	}
	return nil
}

// Revert puts every file touched by r back to its previous content.
func (a *Applier) Revert(r *Result) error {
	var (
		edits   []manifest.Edit
		created []string
	)
	for _, name := range r.names {
		if r.absent[name] {
			created = append(created, name)
			continue
		}
		original, ok := r.originals[name]
		if !ok {
			continue
		}
		edits = append(edits, manifest.Edit{
			Name:  name,
			Apply: func([]byte) ([]byte, error) { return original, nil },
		})
	}

	if len(edits) > 0 {
		if _, err := a.store.WriteAtomic(r.Package, edits...); err != nil {
			return err
		}
	}
	for _, name := range created {
		if err := a.store.RemoveFile(r.Package, name); err != nil {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	log.WithField("package", r.Package.Slug).Debugf("reverted %v", r.names)
	return nil
}

// lastUpdateEdit stamps the primary descriptor with the run date, adding
// the field when the descriptor does not carry one yet.
func lastUpdateEdit(date string) manifest.Edit {
	return manifest.Edit{
		Name: manifest.PrimaryDescriptor,
		Apply: func(content []byte) ([]byte, error) {
			if lastUpdateField.Match(content) {
				return lastUpdateField.ReplaceAll(content, []byte(`${1}"`+date+`"`)), nil
			}
			i := bytes.IndexByte(content, '{')
			if i < 0 {
				return nil, fmt.Errorf("%s is not a JSON object", manifest.PrimaryDescriptor)
			}
			field := fmt.Sprintf("\n  \"last_update\": %q,", date)
			if rest := bytes.TrimSpace(content[i+1:]); len(rest) > 0 && rest[0] == '}' {
				field = fmt.Sprintf("\n  \"last_update\": %q\n", date)
			}
			out := make([]byte, 0, len(content)+len(field))
			out = append(out, content[:i+1]...)
			out = append(out, field...)
			out = append(out, content[i+1:]...)
			return out, nil
		},
	}
}

// changelogEdit prepends an entry for the new version to CHANGELOG.md.
func changelogEdit(image, newVersion, date string) manifest.Edit {
	return manifest.Edit{
		Name:   changelogFile,
		Create: true,
		Apply: func(content []byte) ([]byte, error) {
			entry := fmt.Sprintf("## %s (%s)\n- Update to latest version from %s\n", newVersion, date, image)
			if len(content) > 0 {
				entry += "\n"
			}
			return append([]byte(entry), content...), nil
		},
	}
}

func editNames(edits []manifest.Edit) []string {
	names := make([]string, 0, len(edits))
	for _, e := range edits {
		names = append(names, e.Name)
	}
	return names
}
