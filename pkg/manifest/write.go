package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/addonbump/addonbump/pkg/types"
)

var (
	ErrReadOnly        = errors.New("file is not writable")
	ErrVersionNotFound = errors.New("current version not found in file")
	ErrNotExist        = errors.New("file does not exist")
)

// renameFile moves a staged temp file into place.
var renameFile = func(fs afero.Fs, oldname, newname string) error {
	return fs.Rename(oldname, newname)
}

// Edit is one file rewrite joined to a package's atomic write set.
type Edit struct {
	// Name is relative to the package directory.
	Name string
	// Create allows the file to be absent, in which case Apply gets nil.
	Create bool
	Apply  func(old []byte) ([]byte, error)
}

// VersionEdit replaces every token-bounded occurrence of oldVersion.
func VersionEdit(name, oldVersion, newVersion string) Edit {
	return Edit{
		Name: name,
		Apply: func(content []byte) ([]byte, error) {
			out, n := ReplaceVersion(content, oldVersion, newVersion)
			if n == 0 {
				return nil, fmt.Errorf("%w: %q", ErrVersionNotFound, oldVersion)
			}
			return out, nil
		},
	}
}

func isVersionByte(c byte) bool {
	return c == '.' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

// versionIndexes returns the offsets of the occurrences of v in content that
// are not glued to other version characters.
func versionIndexes(content []byte, v string) []int {
	if v == "" {
		return nil
	}
	needle := []byte(v)
	var idx []int
	for off := 0; off <= len(content)-len(needle); {
		i := bytes.Index(content[off:], needle)
		if i < 0 {
			break
		}
		start, end := off+i, off+i+len(needle)
		if (start == 0 || !isVersionByte(content[start-1])) &&
			(end == len(content) || !isVersionByte(content[end])) {
			idx = append(idx, start)
			off = end
			continue
		}
		off = start + 1
	}
	return idx
}

// ContainsVersion reports whether content embeds v as a standalone token.
func ContainsVersion(content []byte, v string) bool {
	return len(versionIndexes(content, v)) > 0
}

// ReplaceVersion substitutes every standalone occurrence of oldVersion and
// returns the new content with the number of replacements.
func ReplaceVersion(content []byte, oldVersion, newVersion string) ([]byte, int) {
	idx := versionIndexes(content, oldVersion)
	if len(idx) == 0 {
		return content, 0
	}
	var buf bytes.Buffer
	buf.Grow(len(content) + len(idx)*(len(newVersion)-len(oldVersion)))
	last := 0
	for _, i := range idx {
		buf.Write(content[last:i])
		buf.WriteString(newVersion)
		last = i + len(oldVersion)
	}
	buf.Write(content[last:])
	return buf.Bytes(), len(idx)
}

type pendingWrite struct {
	name     string
	tmp      string
	mode     os.FileMode
	existed  bool
	original []byte
	content  []byte
}

// WriteVersion rewrites the pinned version in every manifest path of p, plus
// any extra edits, as one unit. It returns the package-relative names that
// were written.
func (s *Store) WriteVersion(p *types.Package, newVersion string, extra ...Edit) ([]string, error) {
	partial := func(err error) error {
		return &types.PartialWriteError{Slug: p.Slug, Err: err}
	}
	if len(p.ManifestPaths) == 0 {
		return nil, partial(errors.New("package has no manifest paths"))
	}

	edits := make([]Edit, 0, len(p.ManifestPaths)+len(extra))
	for _, name := range p.ManifestPaths {
		edits = append(edits, VersionEdit(name, p.Pinned, newVersion))
	}
	edits = append(edits, extra...)

	names, err := s.WriteAtomic(p, edits...)
	if err != nil {
		return nil, err
	}
	log.WithField("package", p.Slug).Debugf("wrote %s to %v", newVersion, names)
	return names, nil
}

// WriteAtomic applies a set of edits to files of one package: either every
// file is replaced or none is. All targets are checked and all new contents
// computed before anything is written; files are staged next to their
// targets and renamed into place. If a rename fails, files already moved are
// restored from their original bytes.
func (s *Store) WriteAtomic(p *types.Package, edits ...Edit) ([]string, error) {
	partial := func(err error) error {
		return &types.PartialWriteError{Slug: p.Slug, Err: err}
	}

	pfs := s.packageFs(p.Dir)
	writes, err := prepareWrites(pfs, edits)
	if err != nil {
		return nil, partial(err)
	}

	for i, w := range writes {
		w.tmp = filepath.Join(filepath.Dir(w.name), fmt.Sprintf(".%s.addonbump-%d", filepath.Base(w.name), os.Getpid()))
		if err := writeTemp(pfs, w); err != nil {
			removeTemps(pfs, writes[:i+1])
			return nil, partial(fmt.Errorf("staging %s: %w", w.name, err))
		}
	}

	for i, w := range writes {
		if err := renameFile(pfs, w.tmp, w.name); err != nil {
			var merr *multierror.Error
			merr = multierror.Append(merr, fmt.Errorf("replacing %s: %w", w.name, err))
			if rerr := restore(pfs, writes[:i]); rerr != nil {
				merr = multierror.Append(merr, rerr)
			}
			removeTemps(pfs, writes[i:])
			return nil, partial(merr.ErrorOrNil())
		}
	}

	names := make([]string, 0, len(writes))
	for _, w := range writes {
		names = append(names, w.name)
	}
	return names, nil
}

// RemoveFile deletes a file of the package directory.
func (s *Store) RemoveFile(p *types.Package, name string) error {
	if err := s.packageFs(p.Dir).Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// prepareWrites validates every target and computes its new content. Edits
// naming the same file are applied in order to the same buffer.
func prepareWrites(pfs afero.Fs, edits []Edit) ([]*pendingWrite, error) {
	var (
		writes []*pendingWrite
		byName = map[string]*pendingWrite{}
		merr   *multierror.Error
	)
	for _, e := range edits {
		w, ok := byName[e.Name]
		if !ok {
			var err error
			if w, err = inspect(pfs, e); err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", e.Name, err))
				continue
			}
			byName[e.Name] = w
			writes = append(writes, w)
		}
		content, err := e.Apply(w.content)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}
		w.content = content
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return writes, nil
}

func inspect(pfs afero.Fs, e Edit) (*pendingWrite, error) {
	w := &pendingWrite{name: e.Name, mode: 0o644}
	info, err := pfs.Stat(e.Name)
	switch {
	case os.IsNotExist(err):
		if !e.Create {
			return nil, ErrNotExist
		}
		return w, nil
	case err != nil:
		return nil, err
	case info.IsDir():
		return nil, fmt.Errorf("is a directory")
	case info.Mode().Perm()&0o200 == 0:
		return nil, ErrReadOnly
	}

	data, err := afero.ReadFile(pfs, e.Name)
	if err != nil {
		return nil, err
	}
	w.existed = true
	w.mode = info.Mode().Perm()
	w.original = data
	w.content = data
	return w, nil
}

func writeTemp(pfs afero.Fs, w *pendingWrite) error {
	f, err := pfs.OpenFile(w.tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, w.mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(w.content); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return pfs.Chmod(w.tmp, w.mode)
}

func restore(pfs afero.Fs, done []*pendingWrite) error {
	var merr *multierror.Error
	for _, w := range done {
		var err error
		if w.existed {
			err = afero.WriteFile(pfs, w.name, w.original, w.mode)
		} else {
			err = pfs.Remove(w.name)
		}
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("restoring %s: %w", w.name, err))
		}
	}
	return merr.ErrorOrNil()
}

func removeTemps(pfs afero.Fs, writes []*pendingWrite) {
	for _, w := range writes {
		if w.tmp == "" {
			continue
		}
		if err := pfs.Remove(w.tmp); err != nil && !os.IsNotExist(err) {
			log.Warnf("removing temp file %s: %v", w.tmp, err)
		}
	}
}
