package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"startidy/internal/config"
	"startidy/internal/models"
)

// rawAssignment is the model's wire shape. Confidence decodes as
// json.Number so a range violation is a validation problem rather than a
// parse failure.
type rawAssignment struct {
	Repo       string      `json:"repo"`
	Category   string      `json:"category"`
	Confidence json.Number `json:"confidence"`
	Rationale  string      `json:"rationale"`
}

// validateResponse checks a parsed response against the batch contract:
// every batch repo exactly once, confidence in [0,1], and (in existing-lists
// mode) category drawn from the taxonomy or the sentinel. Valid entries are
// returned keyed by lower-cased repo full name; every violation becomes a
// problem string for the corrective retry.
func validateResponse(parsed []rawAssignment, batch []models.Repo, taxonomy []models.Category, mode string) (map[string]models.Assignment, []string) {
	expected := make(map[string]string, len(batch)) // lower -> exact full name
	for _, r := range batch {
		expected[strings.ToLower(r.FullName)] = r.FullName
	}

	// In existing-lists mode the category must resolve, case-insensitively,
	// to an exact taxonomy name.
	var taxonomyNames map[string]string
	if mode == config.ModeExistingLists {
		taxonomyNames = make(map[string]string, len(taxonomy))
		for _, cat := range taxonomy {
			taxonomyNames[models.NormalizeCategory(cat.Name)] = cat.Name
		}
	}

	resolved := make(map[string]models.Assignment, len(batch))
	var problems []string

	for _, raw := range parsed {
		key := strings.ToLower(strings.TrimSpace(raw.Repo))
		fullName, known := expected[key]
		if !known {
			problems = append(problems, fmt.Sprintf("%q is not one of the input repositories", raw.Repo))
			continue
		}
		if _, dup := resolved[key]; dup {
			problems = append(problems, fmt.Sprintf("repository %q appears more than once", fullName))
			continue
		}

		confidence, err := raw.Confidence.Float64()
		if err != nil {
			problems = append(problems, fmt.Sprintf("confidence for %q is not a number", fullName))
			continue
		}
		if confidence < 0 || confidence > 1 {
			problems = append(problems, fmt.Sprintf("confidence %g for %q is outside [0,1]", confidence, fullName))
			continue
		}

		category := strings.TrimSpace(raw.Category)
		if category == "" {
			problems = append(problems, fmt.Sprintf("empty category for %q", fullName))
			continue
		}
		if taxonomyNames != nil && !strings.EqualFold(category, models.Uncategorized) {
			canonical, ok := taxonomyNames[models.NormalizeCategory(category)]
			if !ok {
				problems = append(problems, fmt.Sprintf("category %q for %q is not an existing list", category, fullName))
				continue
			}
			category = canonical
		}

		resolved[key] = models.Assignment{
			Repo:       fullName,
			Category:   category,
			Confidence: confidence,
			Rationale:  strings.TrimSpace(raw.Rationale),
		}
	}

	for key, fullName := range expected {
		if _, ok := resolved[key]; !ok {
			// Only report repos the response skipped entirely; invalid
			// entries above already produced a problem each.
			if !mentioned(parsed, key) {
				problems = append(problems, fmt.Sprintf("repository %q is missing from the response", fullName))
			}
		}
	}

	return resolved, problems
}

func mentioned(parsed []rawAssignment, key string) bool {
	for _, raw := range parsed {
		if strings.ToLower(strings.TrimSpace(raw.Repo)) == key {
			return true
		}
	}
	return false
}
