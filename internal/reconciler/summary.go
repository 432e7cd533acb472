package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"startidy/internal/config"
	"startidy/internal/llm"
	"startidy/internal/models"
)

// summarySampleSize caps how many member repos are shown to the model when
// generating prose.
const summarySampleSize = 5

// Summarizer produces list descriptions. The statistics-only text is
// deterministic for a fixed membership; AI prose is attempted on top of it
// when enabled and always falls back to the statistics text on failure, so
// a description is produced in every case.
type Summarizer struct {
	llm  llm.Completer
	opts config.SummaryOptions
	log  *slog.Logger

	printer *message.Printer
}

func NewSummarizer(completer llm.Completer, opts config.SummaryOptions, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		llm:     completer,
		opts:    opts,
		log:     logger,
		printer: message.NewPrinter(language.English),
	}
}

// Generate builds a description for a list from scratch.
func (s *Summarizer) Generate(ctx context.Context, name string, members []models.Repo) string {
	stats := s.statsDescription(name, members)
	if !s.opts.UseAISummary || s.llm == nil {
		return stats
	}

	prompt := fmt.Sprintf(`Write a description for a GitHub star list named %q.

%s

Total repositories in this list: %d

The description should explain what the list contains, mention the main
technologies, and stay under 100 words. Respond with the description text
only.`, name, sampleBlock(members), len(members))

	text, err := s.llm.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		s.log.Warn("AI summary failed, using statistics text", "list", name, "err", err)
		return stats
	}
	return strings.TrimSpace(text)
}

// Enhance rewrites an existing description with current membership
// information, keeping the original when AI is disabled or fails.
func (s *Summarizer) Enhance(ctx context.Context, name, existing string, members []models.Repo) string {
	if !s.opts.UseAISummary || s.llm == nil {
		return existing
	}

	prompt := fmt.Sprintf(`Enhance this existing GitHub star list description with updated information.

List name: %q
Current description: %q
Current statistics: %s

%s

Keep the original tone, update anything outdated, and stay concise. If the
description is already accurate, return it unchanged. Respond with the
description text only.`, name, existing, s.statsDescription(name, members), sampleBlock(members))

	text, err := s.llm.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		s.log.Warn("AI enhancement failed, keeping existing description", "list", name, "err", err)
		return existing
	}
	return strings.TrimSpace(text)
}

const summarySystemPrompt = `You write short, accurate descriptions for GitHub star lists. Respond with plain text only: no markdown, no quotes around the answer.`

// statsDescription is the deterministic fallback: repo count, dominant
// languages, and (optionally) total stars.
func (s *Summarizer) statsDescription(name string, members []models.Repo) string {
	desc := fmt.Sprintf("Auto-categorized %s repositories (%d repos)", name, len(members))

	if langs := topLanguages(members, 3); len(langs) > 0 {
		desc += " - Main languages: " + strings.Join(langs, ", ")
	}

	if s.opts.IncludeStats {
		total := 0
		for _, m := range members {
			total += m.Stars
		}
		if total > 0 {
			desc += s.printer.Sprintf(" - Total stars: %d", total)
		}
	}
	return desc
}

// topLanguages returns the n most common primary languages, ties broken
// alphabetically.
func topLanguages(members []models.Repo, n int) []string {
	counts := make(map[string]int)
	for _, m := range members {
		if m.Language != nil && *m.Language != "" {
			counts[*m.Language]++
		}
	}

	langs := make([]string, 0, len(counts))
	for lang := range counts {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})

	if len(langs) > n {
		langs = langs[:n]
	}
	return langs
}

func sampleBlock(members []models.Repo) string {
	var b strings.Builder
	b.WriteString("Sample repositories:\n")
	for i, m := range members {
		if i == summarySampleSize {
			break
		}
		fmt.Fprintf(&b, "- %s", m.FullName)
		if m.Description != nil && *m.Description != "" {
			fmt.Fprintf(&b, ": %s", strings.TrimSpace(*m.Description))
		}
		if m.Language != nil && *m.Language != "" {
			fmt.Fprintf(&b, " (%s)", *m.Language)
		}
		b.WriteString("\n")
	}
	return b.String()
}
