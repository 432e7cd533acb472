// Package pipeline sequences one classification run: fetch snapshots,
// classify, reconcile, then apply (or report, in dry-run mode).
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"startidy/internal/classifier"
	"startidy/internal/config"
	"startidy/internal/llm"
	"startidy/internal/models"
	"startidy/internal/reconciler"
)

// Source reads the per-run snapshots. A failure here is fatal: nothing is
// classified and the run aborts.
type Source interface {
	FetchStarred(ctx context.Context) ([]models.Repo, error)
	FetchLists(ctx context.Context) ([]models.ListState, error)
}

// Mutator applies individual list operations. Each call is atomic and
// independent; there are no multi-op transactions.
type Mutator interface {
	CreateList(ctx context.Context, name, description string) (string, error)
	AddMember(ctx context.Context, listID, repoID string) error
	RemoveMember(ctx context.Context, listID, repoID string) error
	SetSummary(ctx context.Context, listID, description string) error
}

type Deps struct {
	Source  Source
	Mutator Mutator
	LLM     llm.Completer
	Log     *slog.Logger
}

// Run executes one full run and returns its report. The returned error is
// non-nil only for fatal conditions (snapshot fetch failure, cancellation);
// per-batch and per-operation failures are isolated and reported instead.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Report, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	log.Info("starting run", "mode", cfg.Mode, "dry_run", cfg.DryRun)

	repos, err := deps.Source.FetchStarred(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("fetched starred repositories", "count", len(repos))

	lists, err := deps.Source.FetchLists(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("fetched star lists", "count", len(lists))

	var taxonomy []models.Category
	if cfg.Mode == config.ModeExistingLists {
		taxonomy = models.TaxonomyFromLists(lists)
	}

	cls := classifier.New(deps.LLM, log)
	assignments, err := cls.Classify(ctx, repos, taxonomy, classifier.Options{
		Mode:        cfg.Mode,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		Exclude:     cfg.ExcludeRepos,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		TotalRepos: len(repos),
		Excluded:   len(repos) - countRepos(assignments),
		DryRun:     cfg.DryRun,
	}
	categories := make(map[string]bool)
	for _, a := range assignments {
		if a.IsUncategorized() {
			report.Uncategorized++
			continue
		}
		report.Classified++
		categories[models.NormalizeCategory(a.Category)] = true
	}
	report.Categories = len(categories)
	log.Info("classification complete",
		"classified", report.Classified,
		"uncategorized", report.Uncategorized,
		"excluded", report.Excluded,
		"categories", report.Categories)

	summarizer := reconciler.NewSummarizer(deps.LLM, cfg.Summary, log)
	rec := reconciler.New(summarizer, log)
	report.Planned = rec.Reconcile(ctx, assignments, lists, repos, reconciler.Options{
		MultiCategory: cfg.MultiCategory,
		Prune:         cfg.Prune,
		TieEpsilon:    cfg.TieEpsilon,
		Summary:       cfg.Summary,
	})
	log.Info("reconciliation complete", "operations", len(report.Planned))

	if cfg.DryRun {
		for _, op := range report.Planned {
			log.Info("dry-run: would apply", "op", op.String())
		}
		return report, nil
	}

	applyErr := apply(ctx, deps.Mutator, repos, report, log)
	return report, applyErr
}

// apply executes the planned operations sequentially, in plan order (lists
// are created before anything references them). A failed operation is
// recorded and the rest continue; there is no rollback. Cancellation stops
// before the next operation but does not undo completed ones — operations
// are idempotent, so a rerun is safe.
func apply(ctx context.Context, m Mutator, repos []models.Repo, report *Report, log *slog.Logger) error {
	repoIDs := make(map[string]string, len(repos))
	for _, r := range repos {
		repoIDs[r.FullName] = r.ID
	}
	createdIDs := make(map[string]string) // normalized list name -> list ID

	fail := func(op models.Operation, err error) {
		mErr := &models.MutationError{Op: op, Err: err}
		log.Error("operation failed", "op", op.String(), "err", err)
		report.Failed = append(report.Failed, mErr)
	}
	succeed := func(op models.Operation) {
		log.Info("applied", "op", op.String())
		report.Applied = append(report.Applied, op)
	}

	for _, op := range report.Planned {
		if err := ctx.Err(); err != nil {
			log.Warn("run canceled, stopping before next operation",
				"applied", len(report.Applied), "remaining", len(report.Planned)-len(report.Applied)-len(report.Failed))
			return err
		}

		switch op.Kind {
		case models.OpCreateList:
			listID, err := m.CreateList(ctx, op.List, op.Summary)
			if err != nil {
				fail(op, err)
				continue
			}
			createdIDs[models.NormalizeCategory(op.List)] = listID
			succeed(op)

			for _, member := range op.Members {
				if err := ctx.Err(); err != nil {
					return err
				}
				addOp := models.Operation{Kind: models.OpAddMember, List: op.List, ListID: listID, Repo: member}
				if err := m.AddMember(ctx, listID, repoIDs[member]); err != nil {
					fail(addOp, err)
					continue
				}
				succeed(addOp)
			}

		case models.OpAddMember:
			listID, ok := resolveListID(op, createdIDs)
			if !ok {
				fail(op, errListNotCreated)
				continue
			}
			if err := m.AddMember(ctx, listID, repoIDs[op.Repo]); err != nil {
				fail(op, err)
				continue
			}
			succeed(op)

		case models.OpRemoveMember:
			if err := m.RemoveMember(ctx, op.ListID, repoIDs[op.Repo]); err != nil {
				fail(op, err)
				continue
			}
			succeed(op)

		case models.OpSetSummary:
			listID, ok := resolveListID(op, createdIDs)
			if !ok {
				fail(op, errListNotCreated)
				continue
			}
			if err := m.SetSummary(ctx, listID, op.Summary); err != nil {
				fail(op, err)
				continue
			}
			succeed(op)
		}
	}
	return nil
}

func resolveListID(op models.Operation, createdIDs map[string]string) (string, bool) {
	if op.ListID != "" {
		return op.ListID, true
	}
	id, ok := createdIDs[models.NormalizeCategory(op.List)]
	return id, ok
}

// errListNotCreated marks operations that depended on a CreateList that
// failed earlier in the same run.
var errListNotCreated = errors.New("target list was not created")

func countRepos(assignments []models.Assignment) int {
	seen := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		seen[a.Repo] = true
	}
	return len(seen)
}
