package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startidy/internal/config"
	"startidy/internal/models"
)

// fakeCompleter answers model calls either from a scripted queue or from a
// content-aware responder, and records every prompt it sees.
type fakeCompleter struct {
	mu      sync.Mutex
	queue   []string
	respond func(system, user string) (string, error)
	prompts []string
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, user)
	if f.respond != nil {
		return f.respond(system, user)
	}
	if len(f.queue) == 0 {
		return "", fmt.Errorf("fake completer: no scripted response left")
	}
	resp := f.queue[0]
	f.queue = f.queue[1:]
	return resp, nil
}

// byCategory builds a responder that classifies every repo in the prompt
// according to the given map. Robust under concurrent batches because it
// answers based on prompt content, not call order.
func byCategory(categories map[string]string) func(string, string) (string, error) {
	return func(_, user string) (string, error) {
		var out []map[string]any
		for _, repo := range reposInPrompt(user) {
			cat, ok := categories[repo]
			if !ok {
				cat = models.Uncategorized
			}
			out = append(out, map[string]any{
				"repo": repo, "category": cat, "confidence": 0.9, "rationale": "test",
			})
		}
		data, err := json.Marshal(out)
		return string(data), err
	}
}

func reposInPrompt(user string) []string {
	var repos []string
	for _, line := range strings.Split(user, "\n") {
		if strings.HasPrefix(line, "- ") {
			repos = append(repos, strings.TrimPrefix(line, "- "))
		}
	}
	return repos
}

func testRepos(names ...string) []models.Repo {
	repos := make([]models.Repo, 0, len(names))
	for _, n := range names {
		owner, name, _ := strings.Cut(n, "/")
		repos = append(repos, models.Repo{Owner: owner, Name: name, FullName: n})
	}
	return repos
}

func newTestClassifier(f *fakeCompleter) *Classifier {
	c := New(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.retryInterval = time.Millisecond
	return c
}

func TestClassifyAssignsCategories(t *testing.T) {
	fake := &fakeCompleter{respond: byCategory(map[string]string{
		"alice/cli-kit":  "Development Tools",
		"bob/webby":      "Web Development",
		"carol/cli-gen":  "Development Tools",
	})}
	c := newTestClassifier(fake)

	got, err := c.Classify(context.Background(), testRepos("alice/cli-kit", "bob/webby", "carol/cli-gen"), nil, Options{Mode: config.ModeAuto})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "alice/cli-kit", got[0].Repo)
	assert.Equal(t, "Development Tools", got[0].Category)
	assert.Equal(t, "Web Development", got[1].Category)
	assert.Equal(t, "Development Tools", got[2].Category)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-9)
}

func TestClassifyPreservesInputOrderAcrossBatches(t *testing.T) {
	names := []string{"a/one", "b/two", "c/three", "d/four", "e/five", "f/six", "g/seven"}
	categories := make(map[string]string, len(names))
	for _, n := range names {
		categories[n] = "Development Tools"
	}
	fake := &fakeCompleter{respond: byCategory(categories)}
	c := newTestClassifier(fake)

	got, err := c.Classify(context.Background(), testRepos(names...), nil, Options{
		Mode:        config.ModeAuto,
		BatchSize:   2,
		Concurrency: 4,
	})
	require.NoError(t, err)
	require.Len(t, got, len(names))
	for i, n := range names {
		assert.Equal(t, n, got[i].Repo, "position %d", i)
	}
	assert.Equal(t, 4, fake.calls) // ceil(7/2) batches
}

func TestClassifyExclusionCompleteness(t *testing.T) {
	fake := &fakeCompleter{respond: byCategory(map[string]string{
		"a/keep": "Development Tools",
		"b/also": "Development Tools",
	})}
	c := newTestClassifier(fake)

	got, err := c.Classify(context.Background(), testRepos("a/keep", "x/secret", "b/also"), nil, Options{
		Mode:    config.ModeAuto,
		Exclude: []string{"X/Secret"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, a := range got {
		assert.NotEqual(t, "x/secret", a.Repo)
	}
	// The excluded repo must never reach a model call at all.
	for _, p := range fake.prompts {
		assert.NotContains(t, p, "x/secret")
	}
}

func TestClassifyMalformedResponseDegradesToUncategorized(t *testing.T) {
	fake := &fakeCompleter{respond: func(_, _ string) (string, error) {
		return "I'm sorry, I can't do JSON today", nil
	}}
	c := newTestClassifier(fake)

	repos := testRepos("a/a", "b/b", "c/c", "d/d", "e/e")
	got, err := c.Classify(context.Background(), repos, nil, Options{
		Mode:       config.ModeAuto,
		MaxRetries: 1,
	})
	require.NoError(t, err, "a failed batch must not fail the run")
	require.Len(t, got, 5)
	for i, a := range got {
		assert.Equal(t, repos[i].FullName, a.Repo)
		assert.True(t, a.IsUncategorized(), "repo %s should fall back to the sentinel", a.Repo)
	}
	assert.Equal(t, 2, fake.calls, "initial attempt plus one retry")
}

func TestClassifyCorrectiveRetryFillsGaps(t *testing.T) {
	// First response: b/two missing entirely. Corrective retry answers for
	// everything; only the gap is taken from it.
	first := `[{"repo":"a/one","category":"Development Tools","confidence":0.9,"rationale":"r"},
		{"repo":"c/three","category":"Web Development","confidence":0.8,"rationale":"r"}]`
	second := `[{"repo":"a/one","category":"Database & Storage","confidence":0.4,"rationale":"changed my mind"},
		{"repo":"b/two","category":"Web Development","confidence":0.7,"rationale":"r"},
		{"repo":"c/three","category":"Web Development","confidence":0.8,"rationale":"r"}]`
	fake := &fakeCompleter{queue: []string{first, second}}
	c := newTestClassifier(fake)

	got, err := c.Classify(context.Background(), testRepos("a/one", "b/two", "c/three"), nil, Options{
		Mode:        config.ModeAuto,
		Concurrency: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	// First-answer entries win; the corrective answer only fills the gap.
	assert.Equal(t, "Development Tools", got[0].Category)
	assert.Equal(t, "Web Development", got[1].Category)
	assert.Equal(t, "Web Development", got[2].Category)
	assert.Equal(t, 2, fake.calls)
	assert.Contains(t, fake.prompts[1], "missing from the response")
}

func TestClassifyExistingModeRejectsUnknownCategory(t *testing.T) {
	taxonomy := []models.Category{{Name: "Databases"}, {Name: "Web Development"}}
	first := `[{"repo":"a/one","category":"Totally New Thing","confidence":0.9,"rationale":"r"}]`
	second := `[{"repo":"a/one","category":"databases","confidence":0.9,"rationale":"r"}]`
	fake := &fakeCompleter{queue: []string{first, second}}
	c := newTestClassifier(fake)

	got, err := c.Classify(context.Background(), testRepos("a/one"), taxonomy, Options{
		Mode:        config.ModeExistingLists,
		Concurrency: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	// Case-insensitive match resolves to the exact taxonomy name.
	assert.Equal(t, "Databases", got[0].Category)
}

func TestClassifyExistingModeFallsBackToSentinel(t *testing.T) {
	taxonomy := []models.Category{{Name: "Databases"}}
	bad := `[{"repo":"a/one","category":"Invented","confidence":0.9,"rationale":"r"}]`
	fake := &fakeCompleter{queue: []string{bad, bad}}
	c := newTestClassifier(fake)

	got, err := c.Classify(context.Background(), testRepos("a/one"), taxonomy, Options{
		Mode:        config.ModeExistingLists,
		Concurrency: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsUncategorized())
}

func TestClassifyNormalizesProposedCategoryNames(t *testing.T) {
	resp := `[{"repo":"a/one","category":"Web Dev","confidence":0.9,"rationale":"r"},
		{"repo":"b/two","category":"web dev","confidence":0.9,"rationale":"r"},
		{"repo":"c/three","category":" Web  Dev ","confidence":0.9,"rationale":"r"}]`
	fake := &fakeCompleter{queue: []string{resp}}
	c := newTestClassifier(fake)

	got, err := c.Classify(context.Background(), testRepos("a/one", "b/two", "c/three"), nil, Options{Mode: config.ModeAuto})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, a := range got {
		assert.Equal(t, "Web Dev", a.Category)
	}
}

func TestValidateResponseProblems(t *testing.T) {
	batch := testRepos("a/one", "b/two")
	parsed := []rawAssignment{
		{Repo: "a/one", Category: "Tools", Confidence: json.Number("1.4"), Rationale: "r"},
		{Repo: "z/ghost", Category: "Tools", Confidence: json.Number("0.5"), Rationale: "r"},
	}

	resolved, problems := validateResponse(parsed, batch, nil, config.ModeAuto)
	assert.Empty(t, resolved)
	require.Len(t, problems, 3)
	assert.Contains(t, problems[0], "outside [0,1]")
	assert.Contains(t, problems[1], "not one of the input repositories")
	assert.Contains(t, problems[2], "missing from the response")
}
