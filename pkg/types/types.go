package types

import (
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

// RegistryKind selects the tag listing protocol used for a package image.
type RegistryKind string

const (
	RegistryDockerHub RegistryKind = "dockerhub"
	RegistryOCI       RegistryKind = "oci"
)

// SelectionPolicy controls how a candidate version is derived from a TagSet.
type SelectionPolicy struct {
	FloatingAlias   string
	ExcludeFloating bool
	VersionFilter   bool
	TagFilter       string
	TagExclude      string
	Prerelease      bool
	ByDate          bool
	ListSize        int
}

// DefaultPolicy is applied to descriptors that leave policy fields unset.
func DefaultPolicy() SelectionPolicy {
	return SelectionPolicy{
		FloatingAlias:   "latest",
		ExcludeFloating: true,
		VersionFilter:   true,
	}
}

// Package is one update-managed unit, rebuilt from its descriptors every run.
type Package struct {
	Slug          string
	Dir           string
	Image         string
	Registry      RegistryKind
	Pinned        string
	ManifestPaths []string // relative to Dir, primary descriptor first
	Policy        SelectionPolicy
	Paused        bool
	LastUpdate    string
}

// TagSet is the live result of a registry query.
type TagSet struct {
	Image string
	Tags  sets.Set[string]
	// Pushed holds push timestamps for registries that report them.
	Pushed map[string]time.Time
}

// NewTagSet builds a TagSet from a list of tag names.
func NewTagSet(image string, tags ...string) TagSet {
	return TagSet{
		Image:  image,
		Tags:   sets.New[string](tags...),
		Pushed: map[string]time.Time{},
	}
}

// OutcomeKind is the disposition of a package at the end of its iteration.
type OutcomeKind string

const (
	OutcomeUpdated   OutcomeKind = "updated"
	OutcomeUnchanged OutcomeKind = "unchanged"
	OutcomeSkipped   OutcomeKind = "skipped"
)

// SkipReason explains a skipped outcome.
type SkipReason string

const (
	SkipMissingManifest  SkipReason = "missing-manifest"
	SkipNoCandidate      SkipReason = "no-candidate"
	SkipRegistryFailure  SkipReason = "registry-failure"
	SkipResolverFailure  SkipReason = "resolver-failure"
	SkipPartialPatch     SkipReason = "partial-patch"
	SkipCommitFailed     SkipReason = "commit-failed"
	SkipPaused           SkipReason = "paused"
	SkipDowngrade        SkipReason = "downgrade"
	SkipInvalidReference SkipReason = "invalid-reference"
	SkipCancelled        SkipReason = "cancelled"
)

// UpdateOutcome is the immutable per-package result of a run.
type UpdateOutcome struct {
	Slug   string
	Image  string
	Kind   OutcomeKind
	From   string
	To     string
	Reason SkipReason
	Err    error
	// Files are the store-relative paths written for an update.
	Files  []string
	DryRun bool
}

func Updated(slug, image, from, to string) UpdateOutcome {
	return UpdateOutcome{Slug: slug, Image: image, Kind: OutcomeUpdated, From: from, To: to}
}

func Unchanged(slug, image, current string) UpdateOutcome {
	return UpdateOutcome{Slug: slug, Image: image, Kind: OutcomeUnchanged, From: current, To: current}
}

func Skipped(slug, image string, reason SkipReason, err error) UpdateOutcome {
	return UpdateOutcome{Slug: slug, Image: image, Kind: OutcomeSkipped, Reason: reason, Err: err}
}

// RunSummary aggregates the outcomes of a run for the notifier.
type RunSummary struct {
	Started  time.Time
	Duration time.Duration
	DryRun   bool
	Outcomes []UpdateOutcome
	// PublishErr is set when the final push failed.
	PublishErr error
	// FatalErr is set when the run aborted (store sync or publish).
	FatalErr error

	notified atomic.Bool
}

// NewRunSummary starts a summary at the given time.
func NewRunSummary(started time.Time, dryRun bool) *RunSummary {
	return &RunSummary{Started: started, DryRun: dryRun}
}

func (s *RunSummary) Add(o UpdateOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// Filter returns the outcomes of one kind, in run order.
func (s *RunSummary) Filter(kind OutcomeKind) []UpdateOutcome {
	var out []UpdateOutcome
	for _, o := range s.Outcomes {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (s *RunSummary) Updated() []UpdateOutcome   { return s.Filter(OutcomeUpdated) }
func (s *RunSummary) Unchanged() []UpdateOutcome { return s.Filter(OutcomeUnchanged) }
func (s *RunSummary) Skipped() []UpdateOutcome   { return s.Filter(OutcomeSkipped) }

// MarkNotified records that the summary was handed to the notifier. It
// returns false when that already happened.
func (s *RunSummary) MarkNotified() bool {
	return s.notified.CompareAndSwap(false, true)
}

// Idle reports whether the run neither changed nor skipped anything.
func (s *RunSummary) Idle() bool {
	return s.FatalErr == nil && len(s.Updated()) == 0 && len(s.Skipped()) == 0
}
