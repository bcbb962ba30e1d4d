package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/containerd/platforms"
	debversion "github.com/knqyf263/go-deb-version"
)

// tagShape accepts an optional letter prefix, at least two dot-separated
// numeric segments and an optional dash-led qualifier: v1.2.3, 4.0.1-ls45.
var tagShape = regexp.MustCompile(`^([A-Za-z]*)([0-9]+(?:\.[0-9]+)+)(?:-([0-9A-Za-z][0-9A-Za-z.\-]*))?$`)

var prereleaseQualifier = regexp.MustCompile(`(?i)(^|[.\-])(alpha|beta|rc|dev|pre|preview|nightly|snapshot|test)[0-9]*([.\-]|$)`)

// Version is a tag that matched the version shape.
type Version struct {
	Tag       string
	Prefix    string
	Core      string
	Qualifier string

	core    debversion.Version
	ordered debversion.Version
}

// Parse checks a tag against the version shape.
func Parse(tag string) (Version, error) {
	m := tagShape.FindStringSubmatch(strings.TrimSpace(tag))
	if m == nil {
		return Version{}, fmt.Errorf("tag %q is not version shaped", tag)
	}

	comparable := m[2]
	if m[3] != "" {
		comparable += "-" + m[3]
	}
	ordered, err := debversion.NewVersion(comparable)
	if err != nil {
		return Version{}, fmt.Errorf("tag %q is not orderable: %w", tag, err)
	}
	core, err := debversion.NewVersion(m[2])
	if err != nil {
		return Version{}, fmt.Errorf("tag %q is not orderable: %w", tag, err)
	}

	return Version{
		Tag:       tag,
		Prefix:    m[1],
		Core:      m[2],
		Qualifier: m[3],
		core:      core,
		ordered:   ordered,
	}, nil
}

// Compare orders two versions: numeric runs compare numerically, so 10.0
// sorts after 9.0. The letter prefix is ignored. On equal cores a pre-release
// sorts below the release and any build qualifier (1.3.0-rc1 < 1.3.0 <
// 1.3.0-ls45).
func (v Version) Compare(o Version) int {
	if c := v.core.Compare(o.core); c != 0 {
		return c
	}
	vp, op := v.Prerelease(), o.Prerelease()
	switch {
	case vp && !op:
		return -1
	case !vp && op:
		return 1
	}
	return v.ordered.Compare(o.ordered)
}

// Prerelease reports whether the qualifier names an unstable channel.
func (v Version) Prerelease() bool {
	return v.Qualifier != "" && prereleaseQualifier.MatchString(v.Qualifier)
}

// PlatformSuffixed reports whether any qualifier token names an OS or
// architecture, as in 1.2.3-arm64.
func (v Version) PlatformSuffixed() bool {
	if v.Qualifier == "" {
		return false
	}
	for _, tok := range strings.Split(v.Qualifier, "-") {
		if tok == "" {
			continue
		}
		if _, err := platforms.Parse(tok); err == nil {
			return true
		}
	}
	return false
}

// Normalize is the comparison form shared by the resolver and the planner:
// trimmed, lower-cased, letter prefix removed from version-shaped tags.
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if m := tagShape.FindStringSubmatch(tag); m != nil && m[1] != "" {
		return strings.TrimPrefix(tag, m[1])
	}
	return tag
}

// Equal compares two tags in normalized form. There is no prefix matching:
// 1.2 and 1.20 are different.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// CompareTags orders two raw tags. ok is false when either is not version
// shaped.
func CompareTags(a, b string) (cmp int, ok bool) {
	va, err := Parse(a)
	if err != nil {
		return 0, false
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, false
	}
	return va.Compare(vb), true
}
