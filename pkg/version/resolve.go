package version

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/addonbump/addonbump/pkg/types"
)

// wellKnownAliases move with every build on most registries.
var wellKnownAliases = sets.New[string]("latest", "stable", "edge", "dev", "develop", "nightly", "main", "master")

// Floating reports whether tag is a floating alias under policy. The
// policy's own alias marker is never a candidate.
func Floating(tag string, policy types.SelectionPolicy) bool {
	alias := policy.FloatingAlias
	if alias == "" {
		alias = "latest"
	}
	if strings.EqualFold(tag, alias) {
		return true
	}
	return policy.ExcludeFloating && wellKnownAliases.Has(strings.ToLower(tag))
}

type candidate struct {
	tag    string
	parsed *Version
}

// Candidates returns the tags that survive the policy, best first.
func Candidates(tags types.TagSet, policy types.SelectionPolicy, current string) []string {
	var pool []candidate
	for _, tag := range sets.List(tags.Tags) {
		if c, ok := admit(tag, policy); ok {
			pool = append(pool, c)
		}
	}

	slices.SortStableFunc(pool, func(a, b candidate) int {
		return -order(a, b, tags, policy, current)
	})

	out := make([]string, 0, len(pool))
	for _, c := range pool {
		out = append(out, c.tag)
	}
	return out
}

// Resolve picks the candidate version for a package. ok is false when no
// tag qualifies. A tag equal to current stays eligible, so "no newer
// version" and "nothing found" remain distinguishable.
func Resolve(tags types.TagSet, policy types.SelectionPolicy, current string) (string, bool) {
	pool := Candidates(tags, policy, current)
	if len(pool) == 0 {
		return "", false
	}
	log.Debugf("%s: %d qualifying tags, best %s", tags.Image, len(pool), pool[0])
	return pool[0], true
}

func admit(tag string, policy types.SelectionPolicy) (candidate, bool) {
	if tag == "" {
		return candidate{}, false
	}
	if Floating(tag, policy) {
		return candidate{}, false
	}
	if policy.TagFilter != "" && !strings.Contains(tag, policy.TagFilter) {
		return candidate{}, false
	}
	if policy.TagExclude != "" && strings.Contains(tag, policy.TagExclude) {
		return candidate{}, false
	}

	v, err := Parse(tag)
	if err != nil {
		if policy.VersionFilter {
			return candidate{}, false
		}
		return candidate{tag: tag}, true
	}
	if !policy.Prerelease && v.Prerelease() {
		return candidate{}, false
	}
	if v.PlatformSuffixed() {
		return candidate{}, false
	}
	return candidate{tag: tag, parsed: &v}, true
}

// order returns >0 when a should be preferred over b.
func order(a, b candidate, tags types.TagSet, policy types.SelectionPolicy, current string) int {
	if policy.ByDate {
		ta, okA := tags.Pushed[a.tag]
		tb, okB := tags.Pushed[b.tag]
		if okA && okB && !ta.Equal(tb) {
			if ta.After(tb) {
				return 1
			}
			return -1
		}
	}

	switch {
	case a.parsed != nil && b.parsed != nil:
		if c := a.parsed.Compare(*b.parsed); c != 0 {
			return c
		}
	case a.parsed != nil:
		return 1
	case b.parsed != nil:
		return -1
	}

	// equal versions: keep what is pinned, then fall back to lexical order
	if a.tag == current {
		return 1
	}
	if b.tag == current {
		return -1
	}
	return strings.Compare(a.tag, b.tag)
}
