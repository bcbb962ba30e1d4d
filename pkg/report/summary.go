package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/addonbump/addonbump/pkg/types"
)

const appName = "addonbump"

// Message is the text delivered to a notification channel.
type Message struct {
	Title string
	Body  string
	// Failed is set when the run hit a fatal or publish error.
	Failed bool
}

// Compose renders a run summary. Failures are stated in the title and on
// the first line of the body.
func Compose(s *types.RunSummary) Message {
	updated, unchanged, skipped := s.Updated(), s.Unchanged(), s.Skipped()

	var title string
	switch {
	case s.PublishErr != nil:
		title = fmt.Sprintf("%s: publish failed", appName)
	case s.FatalErr != nil:
		title = fmt.Sprintf("%s: run failed", appName)
	case len(updated) == 1:
		title = fmt.Sprintf("%s: 1 package updated", appName)
	case len(updated) > 1:
		title = fmt.Sprintf("%s: %d packages updated", appName, len(updated))
	default:
		title = fmt.Sprintf("%s: no updates", appName)
	}
	if s.DryRun {
		title = "[dry-run] " + title
	}

	var b strings.Builder
	switch {
	case s.PublishErr != nil:
		fmt.Fprintf(&b, "Publish failed: %v\n", s.PublishErr)
	case s.FatalErr != nil:
		fmt.Fprintf(&b, "Run failed: %v\n", s.FatalErr)
	}
	if s.DryRun {
		b.WriteString("Dry run: no files were changed.\n")
	}

	if len(updated) > 0 {
		b.WriteString("Updated:\n")
		for _, o := range updated {
			fmt.Fprintf(&b, "- %s (%s): %s -> %s\n", o.Slug, o.Image, o.From, o.To)
		}
	}
	fmt.Fprintf(&b, "Unchanged: %d\n", len(unchanged))
	if len(skipped) > 0 {
		b.WriteString("Skipped:\n")
		for _, o := range skipped {
			if o.Err != nil {
				fmt.Fprintf(&b, "- %s: %s (%v)\n", o.Slug, o.Reason, o.Err)
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", o.Slug, o.Reason)
		}
	}
	fmt.Fprintf(&b, "Duration: %s", s.Duration.Round(time.Millisecond))

	return Message{
		Title:  title,
		Body:   b.String(),
		Failed: s.FatalErr != nil || s.PublishErr != nil,
	}
}
