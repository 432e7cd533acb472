package reconciler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startidy/internal/config"
	"startidy/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestReconciler uses a statistics-only summarizer so output is fully
// deterministic.
func newTestReconciler(summary config.SummaryOptions) *Reconciler {
	return New(NewSummarizer(nil, summary, discardLogger()), discardLogger())
}

func assign(repo, category string, confidence float64) models.Assignment {
	return models.Assignment{Repo: repo, Category: category, Confidence: confidence, Rationale: "test"}
}

func list(id, name, description string, members ...string) models.ListState {
	l := models.ListState{
		ID:          id,
		Name:        name,
		Description: description,
		Members:     make(map[string]bool),
		MemberIDs:   make(map[string]string),
	}
	for _, m := range members {
		l.Members[m] = true
		l.MemberIDs[m] = "node-" + m
	}
	return l
}

func opsOfKind(ops []models.Operation, kind models.OpKind) []models.Operation {
	var out []models.Operation
	for _, op := range ops {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

func TestReconcileCreatesListsInAutoMode(t *testing.T) {
	r := newTestReconciler(config.SummaryOptions{})
	assignments := []models.Assignment{
		assign("a/cli-kit", "CLI Tools", 0.9),
		assign("b/webby", "Web Frameworks", 0.9),
		assign("c/cli-gen", "CLI Tools", 0.85),
	}

	ops := r.Reconcile(context.Background(), assignments, nil, nil, Options{})

	creates := opsOfKind(ops, models.OpCreateList)
	require.Len(t, creates, 2)
	require.Len(t, ops, 2, "creates carry their members; no separate ops expected")

	assert.Equal(t, "CLI Tools", creates[0].List)
	assert.Equal(t, []string{"a/cli-kit", "c/cli-gen"}, creates[0].Members)
	assert.Equal(t, "Web Frameworks", creates[1].List)
	assert.Equal(t, []string{"b/webby"}, creates[1].Members)
}

func TestReconcileAddsOnlyMissingMembers(t *testing.T) {
	r := newTestReconciler(config.SummaryOptions{})
	lists := []models.ListState{list("L1", "Databases", "desc", "x/existing")}
	assignments := []models.Assignment{
		assign("y/newcomer", "Databases", 0.9),
		assign("x/existing", "Databases", 0.95), // already present: no op
	}

	ops := r.Reconcile(context.Background(), assignments, lists, nil, Options{})

	require.Len(t, ops, 1)
	assert.Equal(t, models.OpAddMember, ops[0].Kind)
	assert.Equal(t, "Databases", ops[0].List)
	assert.Equal(t, "L1", ops[0].ListID)
	assert.Equal(t, "y/newcomer", ops[0].Repo)
}

func TestReconcileUncategorizedProducesNoOperations(t *testing.T) {
	r := newTestReconciler(config.SummaryOptions{})
	assignments := []models.Assignment{
		assign("a/mystery", models.Uncategorized, 0.1),
	}

	ops := r.Reconcile(context.Background(), assignments, nil, nil, Options{})
	assert.Empty(t, ops)
}

func TestReconcileNormalizesCategoryNames(t *testing.T) {
	r := newTestReconciler(config.SummaryOptions{})
	assignments := []models.Assignment{
		assign("a/one", "Machine Learning", 0.9),
		assign("b/two", "machine learning", 0.9),
		assign("c/three", " Machine  Learning ", 0.9),
	}

	ops := r.Reconcile(context.Background(), assignments, nil, nil, Options{})

	creates := opsOfKind(ops, models.OpCreateList)
	require.Len(t, creates, 1)
	assert.Equal(t, "Machine Learning", creates[0].List)
	assert.Equal(t, []string{"a/one", "b/two", "c/three"}, creates[0].Members)
}

func TestReconcileIdempotence(t *testing.T) {
	r := newTestReconciler(config.SummaryOptions{IncludeStats: true})
	assignments := []models.Assignment{
		assign("a/one", "CLI Tools", 0.9),
		assign("b/two", "Databases", 0.9),
	}
	lists := []models.ListState{list("L1", "Databases", "hand-written", "x/old")}

	first := r.Reconcile(context.Background(), assignments, lists, nil, Options{})
	require.NotEmpty(t, first)

	converged := applyToSnapshot(lists, first)
	second := r.Reconcile(context.Background(), assignments, converged, nil, Options{})
	assert.Empty(t, second, "reconciling converged state must be a no-op")
}

// applyToSnapshot simulates the external store applying operations, for the
// idempotence property.
func applyToSnapshot(lists []models.ListState, ops []models.Operation) []models.ListState {
	// Capacity covers every possible create so pointers in byKey stay valid.
	out := make([]models.ListState, len(lists), len(lists)+len(ops))
	copy(out, lists)
	byKey := make(map[string]*models.ListState)
	for i := range out {
		byKey[models.NormalizeCategory(out[i].Name)] = &out[i]
	}

	for _, op := range ops {
		switch op.Kind {
		case models.OpCreateList:
			l := list(fmt.Sprintf("new-%s", op.List), op.List, op.Summary, op.Members...)
			out = append(out, l)
			byKey[models.NormalizeCategory(op.List)] = &out[len(out)-1]
		case models.OpAddMember:
			l := byKey[models.NormalizeCategory(op.List)]
			l.Members[op.Repo] = true
			l.MemberIDs[op.Repo] = "node-" + op.Repo
		case models.OpRemoveMember:
			l := byKey[models.NormalizeCategory(op.List)]
			delete(l.Members, op.Repo)
			delete(l.MemberIDs, op.Repo)
		case models.OpSetSummary:
			byKey[models.NormalizeCategory(op.List)].Description = op.Summary
		}
	}
	return out
}

func TestReconcileTieBreakPrefersExistingList(t *testing.T) {
	lists := []models.ListState{list("L1", "Databases", "desc")}
	assignments := []models.Assignment{
		assign("a/one", "Machine Learning", 0.80),
		assign("a/one", "Databases", 0.78),
	}

	r := newTestReconciler(config.SummaryOptions{})

	// Within epsilon: the category matching an existing list wins.
	ops := r.Reconcile(context.Background(), assignments, lists, nil, Options{TieEpsilon: 0.05})
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpAddMember, ops[0].Kind)
	assert.Equal(t, "Databases", ops[0].List)

	// Outside epsilon: plain highest confidence wins.
	ops = r.Reconcile(context.Background(), assignments, lists, nil, Options{TieEpsilon: 0.01})
	creates := opsOfKind(ops, models.OpCreateList)
	require.Len(t, creates, 1)
	assert.Equal(t, "Machine Learning", creates[0].List)
}

func TestReconcileMultiCategoryKeepsAllAssignments(t *testing.T) {
	r := newTestReconciler(config.SummaryOptions{})
	assignments := []models.Assignment{
		assign("a/one", "CLI Tools", 0.9),
		assign("a/one", "Development Tools", 0.7),
	}

	ops := r.Reconcile(context.Background(), assignments, nil, nil, Options{MultiCategory: true})
	creates := opsOfKind(ops, models.OpCreateList)
	require.Len(t, creates, 2)
	assert.Equal(t, []string{"a/one"}, creates[0].Members)
	assert.Equal(t, []string{"a/one"}, creates[1].Members)
}

func TestReconcilePruneRemovesReassignedRepos(t *testing.T) {
	lists := []models.ListState{
		list("L1", "Old Home", "desc", "a/mover", "b/stayer"),
		list("L2", "New Home", "desc"),
	}
	assignments := []models.Assignment{
		assign("a/mover", "New Home", 0.9),
	}

	r := newTestReconciler(config.SummaryOptions{})

	// Default: additive only.
	ops := r.Reconcile(context.Background(), assignments, lists, nil, Options{})
	assert.Empty(t, opsOfKind(ops, models.OpRemoveMember))

	// Prune: the re-assigned repo leaves its old list; the unassigned
	// b/stayer is untouched.
	ops = r.Reconcile(context.Background(), assignments, lists, nil, Options{Prune: true})
	removes := opsOfKind(ops, models.OpRemoveMember)
	require.Len(t, removes, 1)
	assert.Equal(t, "Old Home", removes[0].List)
	assert.Equal(t, "a/mover", removes[0].Repo)
}

func TestReconcileAutoCompletesMissingDescription(t *testing.T) {
	lists := []models.ListState{list("L1", "Databases", "", "x/db")}
	repos := []models.Repo{{FullName: "x/db", Stars: 1200, Language: strPtr("Go")}}
	assignments := []models.Assignment{assign("x/db", "Databases", 0.9)}

	r := newTestReconciler(config.SummaryOptions{AutoComplete: true, IncludeStats: true})
	ops := r.Reconcile(context.Background(), assignments, lists, repos, Options{
		Summary: config.SummaryOptions{AutoComplete: true, IncludeStats: true},
	})

	summaries := opsOfKind(ops, models.OpSetSummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, "L1", summaries[0].ListID)
	assert.Equal(t, "Auto-categorized Databases repositories (1 repos) - Main languages: Go - Total stars: 1,200", summaries[0].Summary)
}

func strPtr(s string) *string { return &s }
