// Package report renders the structured per-objective record into
// markdown for the report sink. No narrative prose is generated; the body
// is a factual digest of what one completed objective produced.
package report

import (
	"fmt"
	"strings"
	"time"

	"narrahunt/internal/artifact"
)

// Record is the structured result of one completed objective.
type Record struct {
	Entity          string
	ArtifactType    artifact.Type
	CellStatusAfter string
	Discoveries     []artifact.Discovery
	FailedSources   []string
	Promoted        []string
	Flagged         bool
	GeneratedAt     time.Time
}

// Markdown renders the record as a markdown document.
func Markdown(rec Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s — %s\n\n", rec.Entity, rec.ArtifactType)
	fmt.Fprintf(&b, "*Generated %s · cell now %s*\n\n",
		rec.GeneratedAt.Format("2006-01-02 15:04"), rec.CellStatusAfter)

	if rec.Flagged {
		b.WriteString("> **Flagged:** no discoveries and no successful fetches. " +
			"The remaining sources for this cell may be dead.\n\n")
	}

	if len(rec.Discoveries) == 0 {
		b.WriteString("No discoveries this cycle.\n")
	} else {
		fmt.Fprintf(&b, "## Discoveries (%d)\n\n", len(rec.Discoveries))
		for _, d := range rec.Discoveries {
			fmt.Fprintf(&b, "- **%s** (%s, score %.2f)\n", d.Display, d.Subtype, d.Score)
			for _, src := range d.Sources {
				fmt.Fprintf(&b, "  - source: %s\n", src)
			}
		}
	}

	if len(rec.Promoted) > 0 {
		b.WriteString("\n## Promoted entities\n\n")
		for _, name := range rec.Promoted {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	if len(rec.FailedSources) > 0 {
		b.WriteString("\n## Failed sources (retained for retry)\n\n")
		for _, src := range rec.FailedSources {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}

	return b.String()
}
