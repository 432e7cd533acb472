// Package classifier turns starred repositories into category assignments
// via batched model calls. Batches are dispatched concurrently, validated
// strictly at the model boundary, and degrade to the Uncategorized sentinel
// instead of failing the run.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"startidy/internal/config"
	"startidy/internal/llm"
	"startidy/internal/models"
)

type Options struct {
	// Mode is config.ModeAuto or config.ModeExistingLists.
	Mode string

	// BatchSize bounds how many repos go into one model call.
	BatchSize int

	// Concurrency bounds in-flight model calls.
	Concurrency int

	// MaxRetries bounds re-requests for malformed (unparseable) responses.
	MaxRetries int

	// Exclude lists repo full names that are never sent to the model and
	// receive no assignment at all.
	Exclude []string
}

type Classifier struct {
	llm llm.Completer
	log *slog.Logger

	// retryInterval seeds the malformed-response backoff; shortened in tests.
	retryInterval time.Duration
}

func New(completer llm.Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: completer, log: logger, retryInterval: 500 * time.Millisecond}
}

// Classify assigns a category to every non-excluded repository. The result
// preserves input order regardless of batch completion order. The only
// error returned is context cancellation; batch failures degrade to
// sentinel assignments.
func (c *Classifier) Classify(ctx context.Context, repos []models.Repo, taxonomy []models.Category, opts Options) ([]models.Assignment, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = 15
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}

	included := c.applyExclusions(repos, opts.Exclude)
	if len(included) == 0 {
		return nil, nil
	}

	var batches [][]models.Repo
	for start := 0; start < len(included); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(included) {
			end = len(included)
		}
		batches = append(batches, included[start:end])
	}

	// Results are keyed by batch index so the merged sequence restores
	// input order no matter which batch finishes first.
	results := make([][]models.Assignment, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			results[i] = c.classifyBatch(gctx, i, batch, taxonomy, opts)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var assignments []models.Assignment
	for _, r := range results {
		assignments = append(assignments, r...)
	}

	if opts.Mode != config.ModeExistingLists {
		canonicalizeCategories(assignments)
	}
	return assignments, nil
}

func (c *Classifier) applyExclusions(repos []models.Repo, exclude []string) []models.Repo {
	if len(exclude) == 0 {
		return repos
	}
	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[strings.ToLower(strings.TrimSpace(name))] = true
	}

	included := make([]models.Repo, 0, len(repos))
	for _, r := range repos {
		if excluded[strings.ToLower(r.FullName)] {
			c.log.Debug("excluding repo from classification", "repo", r.FullName)
			continue
		}
		included = append(included, r)
	}
	return included
}

// classifyBatch runs the full request/validate/correct cycle for one batch.
// It always returns one assignment per batch member.
func (c *Classifier) classifyBatch(ctx context.Context, idx int, batch []models.Repo, taxonomy []models.Category, opts Options) []models.Assignment {
	system := buildSystemPrompt(opts.Mode, taxonomy)
	user := buildUserPrompt(batch)

	parsed, err := c.request(ctx, system, user, opts.MaxRetries)
	if err != nil {
		batchErr := &models.BatchError{Batch: idx, Err: err}
		c.log.Warn("classification batch failed, falling back to uncategorized",
			"batch", idx, "repos", len(batch), "err", batchErr)
		return sentinelBatch(batch, "classification failed: "+err.Error())
	}

	resolved, problems := validateResponse(parsed, batch, taxonomy, opts.Mode)
	if len(problems) > 0 {
		vErr := &models.ValidationError{Problems: problems}
		c.log.Warn("model response failed validation, issuing corrective retry",
			"batch", idx, "err", vErr)

		corrected, err := c.request(ctx, system, buildCorrectivePrompt(batch, problems), 0)
		if err != nil {
			c.log.Warn("corrective retry failed", "batch", idx, "err", err)
		} else {
			more, _ := validateResponse(corrected, batch, taxonomy, opts.Mode)
			for key, a := range more {
				if _, ok := resolved[key]; !ok {
					resolved[key] = a
				}
			}
		}
	}

	// Assemble in batch order; anything still unresolved gets the sentinel
	// rather than being dropped.
	out := make([]models.Assignment, 0, len(batch))
	for _, r := range batch {
		if a, ok := resolved[strings.ToLower(r.FullName)]; ok {
			out = append(out, a)
			continue
		}
		out = append(out, models.Assignment{
			Repo:      r.FullName,
			Category:  models.Uncategorized,
			Rationale: "model did not return a valid assignment",
		})
	}
	return out
}

// request sends one prompt and parses the response as a JSON array of
// assignments, retrying malformed output with exponential backoff up to
// maxRetries additional attempts.
func (c *Classifier) request(ctx context.Context, system, user string, maxRetries int) ([]rawAssignment, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	var parsed []rawAssignment
	op := func() error {
		raw, err := c.llm.Complete(ctx, system, user)
		if err != nil {
			// The model client already retried transient transport errors.
			return backoff.Permanent(err)
		}
		parsed = parsed[:0]
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries)), ctx)); err != nil {
		return nil, err
	}
	return parsed, nil
}

func sentinelBatch(batch []models.Repo, rationale string) []models.Assignment {
	out := make([]models.Assignment, 0, len(batch))
	for _, r := range batch {
		out = append(out, models.Assignment{
			Repo:      r.FullName,
			Category:  models.Uncategorized,
			Rationale: rationale,
		})
	}
	return out
}

// canonicalizeCategories dedupes model-proposed category names that differ
// only in case or spacing. The first-seen spelling wins, so a fixed input
// yields a stable result.
func canonicalizeCategories(assignments []models.Assignment) {
	canonical := make(map[string]string)
	for i, a := range assignments {
		name := strings.TrimSpace(a.Category)
		key := models.NormalizeCategory(name)
		if key == "" {
			assignments[i].Category = models.Uncategorized
			continue
		}
		if seen, ok := canonical[key]; ok {
			assignments[i].Category = seen
		} else {
			canonical[key] = name
			assignments[i].Category = name
		}
	}
}
