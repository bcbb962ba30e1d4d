package report

import (
	"time"

	"github.com/addonbump/addonbump/pkg/types"
)

// OutcomeView is the JSON form of an UpdateOutcome.
type OutcomeView struct {
	Slug   string   `json:"slug"`
	Image  string   `json:"image,omitempty"`
	Kind   string   `json:"kind"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
	Reason string   `json:"reason,omitempty"`
	Error  string   `json:"error,omitempty"`
	Files  []string `json:"files,omitempty"`
	DryRun bool     `json:"dry_run"`
}

// SummaryView is the JSON form of a RunSummary.
type SummaryView struct {
	Started  time.Time     `json:"started"`
	Duration string        `json:"duration"`
	DryRun   bool          `json:"dry_run"`
	Outcomes []OutcomeView `json:"outcomes"`
	Error    string        `json:"error,omitempty"`
}

func View(s *types.RunSummary) SummaryView {
	v := SummaryView{
		Started:  s.Started,
		Duration: s.Duration.Round(time.Millisecond).String(),
		DryRun:   s.DryRun,
		Outcomes: make([]OutcomeView, 0, len(s.Outcomes)),
	}
	if s.FatalErr != nil {
		v.Error = s.FatalErr.Error()
	}
	for _, o := range s.Outcomes {
		ov := OutcomeView{
			Slug:   o.Slug,
			Image:  o.Image,
			Kind:   string(o.Kind),
			From:   o.From,
			To:     o.To,
			Reason: string(o.Reason),
			Files:  o.Files,
			DryRun: o.DryRun,
		}
		if o.Err != nil {
			ov.Error = o.Err.Error()
		}
		v.Outcomes = append(v.Outcomes, ov)
	}
	return v
}
