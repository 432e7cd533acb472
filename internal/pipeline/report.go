package pipeline

import (
	"fmt"
	"strings"

	"startidy/internal/models"
)

// Report summarizes one run: what was classified, what was planned, and
// exactly which operations were applied or failed.
type Report struct {
	TotalRepos    int
	Excluded      int
	Classified    int
	Uncategorized int
	Categories    int
	DryRun        bool

	Planned []models.Operation
	Applied []models.Operation
	Failed  []*models.MutationError
}

// Render formats the report for terminal output.
func (r *Report) Render() string {
	var b strings.Builder
	b.WriteString("=== Star Classification Results ===\n")
	fmt.Fprintf(&b, "Repositories:   %d\n", r.TotalRepos)
	if r.Excluded > 0 {
		fmt.Fprintf(&b, "Excluded:       %d\n", r.Excluded)
	}
	fmt.Fprintf(&b, "Classified:     %d\n", r.Classified)
	fmt.Fprintf(&b, "Uncategorized:  %d\n", r.Uncategorized)
	fmt.Fprintf(&b, "Categories:     %d\n", r.Categories)
	fmt.Fprintf(&b, "Operations:     %d planned\n", len(r.Planned))

	if r.DryRun {
		b.WriteString("\n*** DRY RUN MODE - no changes were made ***\n")
		for _, op := range r.Planned {
			fmt.Fprintf(&b, "  would %s\n", op)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "\nApplied %d operations", len(r.Applied))
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(r.Failed))
	}
	b.WriteString("\n")
	for _, f := range r.Failed {
		fmt.Fprintf(&b, "  FAILED %s: %v\n", f.Op, f.Err)
	}
	return b.String()
}
