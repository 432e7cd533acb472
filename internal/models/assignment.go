package models

import "strings"

// Uncategorized is the sentinel category for repos the model could not (or
// was not allowed to) place. Sentinel assignments never produce list
// membership operations.
const Uncategorized = "Uncategorized"

// Assignment is one classification decision: a repo placed into a category
// with a confidence score in [0,1] and a short rationale.
type Assignment struct {
	Repo       string  `json:"repo"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// IsUncategorized reports whether the assignment carries the sentinel
// category.
func (a Assignment) IsUncategorized() bool {
	return strings.EqualFold(strings.TrimSpace(a.Category), Uncategorized)
}

// NormalizeCategory returns the canonical comparison key for a category or
// list name: whitespace-collapsed, trimmed, case-folded. "Web Dev",
// " web  dev " and "web dev" all share one key.
func NormalizeCategory(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
