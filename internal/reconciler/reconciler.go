// Package reconciler converts desired category assignments into the minimal
// operation set that converges the external star-list state. It works from a
// single list snapshot, never re-reads mid-run, and is purely sequential:
// operations are data for the apply step, not side effects.
package reconciler

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"startidy/internal/config"
	"startidy/internal/models"
)

type Options struct {
	// MultiCategory keeps every assignment per repo instead of only the
	// primary (highest-confidence) one.
	MultiCategory bool

	// Prune emits RemoveMember for repos this run assigned away from a list
	// they currently belong to. Off by default: default behavior is
	// additive-only.
	Prune bool

	// TieEpsilon is the confidence window within which the tie-break
	// prefers a category matching an existing list name.
	TieEpsilon float64

	Summary config.SummaryOptions
}

type Reconciler struct {
	summarizer *Summarizer
	log        *slog.Logger
}

func New(summarizer *Summarizer, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{summarizer: summarizer, log: logger}
}

// group collects one category's desired membership for this run.
type group struct {
	name    string
	members []string
	seen    map[string]bool
}

// Reconcile computes the operations that move the list snapshot to the
// desired assignment state. Output ordering is deterministic and creates
// lists before anything references them: CreateList, then AddMember, then
// RemoveMember, then SetSummary, each sorted.
func (r *Reconciler) Reconcile(ctx context.Context, assignments []models.Assignment, lists []models.ListState, repos []models.Repo, opts Options) []models.Operation {
	listByKey := make(map[string]*models.ListState, len(lists))
	existingNames := make(map[string]bool, len(lists))
	for i := range lists {
		l := &lists[i]
		key := models.NormalizeCategory(l.Name)
		if _, dup := listByKey[key]; dup {
			// Two external lists normalizing to the same name; keep the
			// first, the second is unreachable from assignments.
			r.log.Warn("duplicate list name after normalization", "name", l.Name)
			continue
		}
		listByKey[key] = l
		existingNames[l.Name] = true
	}

	selected := r.selectAssignments(assignments, existingNames, opts)

	// Group by normalized category name. Categories that collide after
	// normalization merge into one list rather than erroring.
	groups := make(map[string]*group)
	for _, a := range selected {
		key := models.NormalizeCategory(a.Category)
		g := groups[key]
		if g == nil {
			name := strings.TrimSpace(a.Category)
			if l, ok := listByKey[key]; ok {
				name = l.Name
			}
			g = &group{name: name, seen: make(map[string]bool)}
			groups[key] = g
		} else if g.name != strings.TrimSpace(a.Category) {
			r.log.Debug("merging categories that normalize to one list",
				"kept", g.name, "merged", a.Category)
		}
		if !g.seen[a.Repo] {
			g.seen[a.Repo] = true
			g.members = append(g.members, a.Repo)
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var creates, adds, removes, summaries []models.Operation
	createdIdx := make(map[string]int) // group key -> index into creates

	for _, key := range keys {
		g := groups[key]
		sort.Strings(g.members)

		if l, ok := listByKey[key]; ok {
			// Idempotence: only members absent from the snapshot produce
			// operations.
			for _, m := range g.members {
				if !l.HasMember(m) {
					adds = append(adds, models.Operation{
						Kind:   models.OpAddMember,
						List:   l.Name,
						ListID: l.ID,
						Repo:   m,
					})
				}
			}
		} else {
			createdIdx[key] = len(creates)
			creates = append(creates, models.Operation{
				Kind:    models.OpCreateList,
				List:    g.name,
				Members: g.members,
			})
		}
	}

	if opts.Prune {
		removes = r.pruneReassigned(groups, lists)
	}

	// Summary pass for every list this run created or touched.
	byName := make(map[string]models.Repo, len(repos))
	for _, repo := range repos {
		byName[repo.FullName] = repo
	}
	for _, key := range keys {
		g := groups[key]
		l := listByKey[key]

		members := summaryMembers(g, l, byName)
		if l == nil {
			text := r.summarizer.Generate(ctx, g.name, members)
			creates[createdIdx[key]].Summary = text
			continue
		}

		switch {
		case l.Description == "" && opts.Summary.AutoComplete:
			if text := r.summarizer.Generate(ctx, l.Name, members); text != "" {
				summaries = append(summaries, models.Operation{
					Kind:    models.OpSetSummary,
					List:    l.Name,
					ListID:  l.ID,
					Summary: text,
				})
			}
		case l.Description != "" && opts.Summary.EnhanceExisting:
			if text := r.summarizer.Enhance(ctx, l.Name, l.Description, members); text != l.Description {
				summaries = append(summaries, models.Operation{
					Kind:    models.OpSetSummary,
					List:    l.Name,
					ListID:  l.ID,
					Summary: text,
				})
			}
		}
	}

	ops := make([]models.Operation, 0, len(creates)+len(adds)+len(removes)+len(summaries))
	ops = append(ops, creates...)
	ops = append(ops, adds...)
	ops = append(ops, removes...)
	ops = append(ops, summaries...)
	return ops
}

// selectAssignments filters to the assignments that should drive list
// membership: non-sentinel, one per repo (the primary) unless multi-category
// is on. Order follows first appearance of each repo in the input.
func (r *Reconciler) selectAssignments(assignments []models.Assignment, existingNames map[string]bool, opts Options) []models.Assignment {
	byRepo := make(map[string][]models.Assignment)
	var order []string
	for _, a := range assignments {
		if a.IsUncategorized() {
			continue
		}
		if _, ok := byRepo[a.Repo]; !ok {
			order = append(order, a.Repo)
		}
		byRepo[a.Repo] = append(byRepo[a.Repo], a)
	}

	var selected []models.Assignment
	for _, repo := range order {
		candidates := byRepo[repo]
		if opts.MultiCategory {
			selected = append(selected, candidates...)
			continue
		}
		selected = append(selected, pickPrimary(candidates, existingNames, opts.TieEpsilon))
	}
	return selected
}

// pickPrimary returns the highest-confidence assignment. When the top
// candidates sit within epsilon of each other, one whose category exactly
// matches an existing list wins: keeping borderline repos where they already
// are avoids membership oscillating across runs.
func pickPrimary(candidates []models.Assignment, existingNames map[string]bool, epsilon float64) models.Assignment {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	best := candidates[0]
	for _, c := range candidates {
		if best.Confidence-c.Confidence > epsilon {
			break
		}
		if existingNames[c.Category] {
			return c
		}
	}
	return best
}

// pruneReassigned emits RemoveMember for every current membership of a repo
// that this run assigned to some other list. Repos with no assignment this
// run are left alone.
func (r *Reconciler) pruneReassigned(groups map[string]*group, lists []models.ListState) []models.Operation {
	targets := make(map[string]map[string]bool) // repo -> set of group keys
	for key, g := range groups {
		for _, m := range g.members {
			if targets[m] == nil {
				targets[m] = make(map[string]bool)
			}
			targets[m][key] = true
		}
	}

	sorted := make([]*models.ListState, 0, len(lists))
	for i := range lists {
		sorted = append(sorted, &lists[i])
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var removes []models.Operation
	for _, l := range sorted {
		key := models.NormalizeCategory(l.Name)
		members := make([]string, 0, len(l.Members))
		for m := range l.Members {
			members = append(members, m)
		}
		sort.Strings(members)

		for _, m := range members {
			t := targets[m]
			if t == nil || t[key] {
				continue
			}
			removes = append(removes, models.Operation{
				Kind:   models.OpRemoveMember,
				List:   l.Name,
				ListID: l.ID,
				Repo:   m,
			})
		}
	}
	return removes
}

// summaryMembers resolves the descriptors backing a list's summary: the
// union of the run's desired members and the snapshot membership, limited to
// repos we have descriptors for.
func summaryMembers(g *group, l *models.ListState, byName map[string]models.Repo) []models.Repo {
	names := make(map[string]bool, len(g.members))
	for _, m := range g.members {
		names[m] = true
	}
	if l != nil {
		for m := range l.Members {
			names[m] = true
		}
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	var members []models.Repo
	for _, name := range ordered {
		if repo, ok := byName[name]; ok {
			members = append(members, repo)
		}
	}
	return members
}
