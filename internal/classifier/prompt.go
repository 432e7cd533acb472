package classifier

import (
	"fmt"
	"strings"

	"startidy/internal/config"
	"startidy/internal/models"
)

// seedCategories steer auto mode toward a stable vocabulary instead of
// letting every run invent fresh near-duplicate names. The model may still
// propose a new name when none fit.
var seedCategories = []string{
	"Web Development",
	"Mobile Development",
	"Data Science & ML",
	"DevOps & Infrastructure",
	"UI/UX & Design",
	"Backend & APIs",
	"Frontend Frameworks",
	"Database & Storage",
	"Security & Privacy",
	"Game Development",
	"Programming Languages",
	"Development Tools",
	"Documentation & Learning",
	"Open Source Libraries",
	"System Programming",
	"Cloud & Serverless",
}

const responseContract = `Respond with a JSON array only (no markdown, no code fences), one element
per input repository, in input order:
[{"repo": "owner/name", "category": "Category Name", "confidence": 0.9, "rationale": "short reason"}]

Rules:
- include every input repository exactly once, keyed by its exact "owner/name"
- "confidence" is a number between 0 and 1
- if a repository cannot be categorized, use the category "Uncategorized"`

func buildSystemPrompt(mode string, taxonomy []models.Category) string {
	if mode == config.ModeExistingLists && len(taxonomy) > 0 {
		var lines strings.Builder
		for _, cat := range taxonomy {
			lines.WriteString("- " + cat.Name)
			if cat.Description != "" {
				lines.WriteString(": " + cat.Description)
			}
			if len(cat.Examples) > 0 {
				lines.WriteString(" (e.g. " + strings.Join(cat.Examples, ", ") + ")")
			}
			lines.WriteString("\n")
		}
		return fmt.Sprintf(`You organize GitHub starred repositories into the user's existing star lists.
For every repository in the input, choose the single MOST appropriate
category from this list, using the exact name as written:
%s
If no existing category fits well, use "Uncategorized". Never invent a
category that is not listed above.

%s`, lines.String(), responseContract)
	}

	return fmt.Sprintf(`You organize GitHub starred repositories into topical star lists.
For every repository in the input, choose one category based on its primary
purpose and technology stack.

Prefer these categories when they fit:
- %s

If none fit well, propose a concise, specific category name of your own.

%s`, strings.Join(seedCategories, "\n- "), responseContract)
}

func buildUserPrompt(batch []models.Repo) string {
	var b strings.Builder
	b.WriteString("Classify these repositories:\n\n")
	for _, r := range batch {
		writeRepoBlock(&b, r)
	}
	return b.String()
}

// buildCorrectivePrompt re-asks for the whole batch, telling the model what
// was wrong with its previous answer.
func buildCorrectivePrompt(batch []models.Repo, problems []string) string {
	var b strings.Builder
	b.WriteString("Your previous answer was invalid:\n")
	for _, p := range problems {
		b.WriteString("- " + p + "\n")
	}
	b.WriteString("\nClassify ALL of these repositories again, following the rules exactly:\n\n")
	for _, r := range batch {
		writeRepoBlock(&b, r)
	}
	return b.String()
}

func writeRepoBlock(b *strings.Builder, r models.Repo) {
	fmt.Fprintf(b, "- %s\n", r.FullName)
	if r.Description != nil && *r.Description != "" {
		fmt.Fprintf(b, "  description: %s\n", strings.TrimSpace(*r.Description))
	}
	if r.Language != nil && *r.Language != "" {
		fmt.Fprintf(b, "  language: %s\n", *r.Language)
	}
	if len(r.Topics) > 0 {
		fmt.Fprintf(b, "  topics: %s\n", strings.Join(r.Topics, ", "))
	}
	fmt.Fprintf(b, "  stars: %d\n", r.Stars)
}
