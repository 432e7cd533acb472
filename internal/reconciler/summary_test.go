package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"startidy/internal/config"
	"startidy/internal/models"
)

type scriptedCompleter struct {
	response string
	err      error
	calls    int
}

func (s *scriptedCompleter) Complete(context.Context, string, string) (string, error) {
	s.calls++
	return s.response, s.err
}

func summaryRepos() []models.Repo {
	goLang, rust := "Go", "Rust"
	return []models.Repo{
		{FullName: "a/one", Stars: 1000, Language: &goLang},
		{FullName: "b/two", Stars: 2500, Language: &goLang},
		{FullName: "c/three", Stars: 40, Language: &rust},
	}
}

func TestStatsDescriptionIsDeterministic(t *testing.T) {
	s := NewSummarizer(nil, config.SummaryOptions{IncludeStats: true}, discardLogger())

	want := "Auto-categorized Tools repositories (3 repos) - Main languages: Go, Rust - Total stars: 3,540"
	assert.Equal(t, want, s.statsDescription("Tools", summaryRepos()))
	assert.Equal(t, want, s.statsDescription("Tools", summaryRepos()))
}

func TestStatsDescriptionWithoutStats(t *testing.T) {
	s := NewSummarizer(nil, config.SummaryOptions{}, discardLogger())
	got := s.statsDescription("Tools", summaryRepos())
	assert.Equal(t, "Auto-categorized Tools repositories (3 repos) - Main languages: Go, Rust", got)
}

func TestGenerateUsesModelWhenEnabled(t *testing.T) {
	fake := &scriptedCompleter{response: "A tidy collection of Go tooling."}
	s := NewSummarizer(fake, config.SummaryOptions{UseAISummary: true}, discardLogger())

	got := s.Generate(context.Background(), "Tools", summaryRepos())
	assert.Equal(t, "A tidy collection of Go tooling.", got)
	assert.Equal(t, 1, fake.calls)
}

func TestGenerateFallsBackToStatsOnModelFailure(t *testing.T) {
	fake := &scriptedCompleter{err: errors.New("boom")}
	s := NewSummarizer(fake, config.SummaryOptions{UseAISummary: true, IncludeStats: true}, discardLogger())

	got := s.Generate(context.Background(), "Tools", summaryRepos())
	assert.Equal(t, "Auto-categorized Tools repositories (3 repos) - Main languages: Go, Rust - Total stars: 3,540", got)
}

func TestEnhanceKeepsExistingWithoutAI(t *testing.T) {
	s := NewSummarizer(nil, config.SummaryOptions{}, discardLogger())
	got := s.Enhance(context.Background(), "Tools", "my hand-written text", summaryRepos())
	assert.Equal(t, "my hand-written text", got)
}

func TestEnhanceKeepsExistingOnModelFailure(t *testing.T) {
	fake := &scriptedCompleter{err: errors.New("boom")}
	s := NewSummarizer(fake, config.SummaryOptions{UseAISummary: true}, discardLogger())
	got := s.Enhance(context.Background(), "Tools", "my hand-written text", summaryRepos())
	assert.Equal(t, "my hand-written text", got)
}
