package update

import (
	"fmt"

	"github.com/addonbump/addonbump/pkg/types"
	"github.com/addonbump/addonbump/pkg/version"
)

// Plan decides what happens to a package given the resolver's candidate.
// found is false when the resolver had nothing to offer.
func Plan(p *types.Package, current, candidate string, found bool) types.UpdateOutcome {
	if !found {
		return types.Skipped(p.Slug, p.Image, types.SkipNoCandidate, nil)
	}
	if version.Equal(candidate, current) {
		return types.Unchanged(p.Slug, p.Image, current)
	}
	if cmp, ok := version.CompareTags(candidate, current); ok && cmp < 0 {
		o := types.Skipped(p.Slug, p.Image, types.SkipDowngrade,
			fmt.Errorf("candidate %s is older than pinned %s", candidate, current))
		o.From, o.To = current, candidate
		return o
	}
	return types.Updated(p.Slug, p.Image, current, candidate)
}
