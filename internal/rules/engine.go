/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/order"
)

// DefaultBatchSize is the filter pipeline's chunk size when the configured
// value is non-positive.
const DefaultBatchSize = 300

// Extractor builds an operand for one item, populating exactly the
// expensive families the requirements ask for.
type Extractor interface {
	Extract(ctx context.Context, item models.MediaItem, opts FieldRequirements, rc *RefreshContext) (*Operand, error)
}

// Catalog supplies series and collection lookups for expansion and the
// collections-only special path.
type Catalog interface {
	EpisodesOfSeries(ctx context.Context, seriesID string) ([]models.MediaItem, error)
	CollectionMembers(ctx context.Context, name string) (map[string]struct{}, error)
}

// UserResolver validates user ids referenced by expressions. A missing user
// returns (nil, nil).
type UserResolver interface {
	ResolveUser(ctx context.Context, id string) (*models.User, error)
}

// SimilarityScorer rates an operand against a reference item, higher is
// more similar, zero is no relation.
type SimilarityScorer interface {
	Score(ctx context.Context, referenceID string, op *Operand) (float64, error)
}

// Engine evaluates smart playlist rule sets against candidate items.
type Engine struct {
	cache     *CompileCache
	extractor Extractor
	catalog   Catalog
	users     UserResolver
	scorer    SimilarityScorer
	watch     order.WatchSource
	batchSize int
	logger    zerolog.Logger
}

// NewEngine wires the engine to its collaborators. batchSize falls back to
// DefaultBatchSize when non-positive.
func NewEngine(cache *CompileCache, extractor Extractor, catalog Catalog, users UserResolver, scorer SimilarityScorer, watch order.WatchSource, batchSize int, logger zerolog.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{
		cache:     cache,
		extractor: extractor,
		catalog:   catalog,
		users:     users,
		scorer:    scorer,
		watch:     watch,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "rules_engine").Logger(),
	}
}

// FilterAndRank is the engine's single entry point: filter candidates by
// the rule set, expand matched series into episodes where configured, sort
// by the order spec, apply count/duration limits, and return the ordered
// item ids. An unresolvable referenced user returns an empty sequence with
// ErrUserNotFound; sort and limit failures degrade to the unsorted or
// unlimited result instead of failing the run.
func (e *Engine) FilterAndRank(ctx context.Context, candidates []models.MediaItem, rs RuleSet, spec order.Spec, maxItems, maxPlayMinutes int, rc *RefreshContext) ([]string, error) {
	rc.ResetSimilarities()

	compiled := e.cache.Compile(rc.PlaylistID, rs, rc.DefaultUserID())
	reqs := Analyze(rs, spec)

	matched, err := e.filterItems(ctx, candidates, compiled, reqs, rc)
	if err != nil {
		return nil, err
	}

	expanded := e.expandSeries(ctx, matched, compiled, reqs, rc)

	sorted := e.sortItems(ctx, expanded, spec, rc)

	limited := e.limitItems(sorted, maxItems, maxPlayMinutes)

	ids := make([]string, len(limited))
	for i, it := range limited {
		ids[i] = it.ID
	}
	return ids, nil
}

// sortItems applies the order spec, falling back to the filtered order on
// any sort-stage failure.
func (e *Engine) sortItems(ctx context.Context, items []models.MediaItem, spec order.Spec, rc *RefreshContext) (out []models.MediaItem) {
	out = items
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("sort stage failed, returning unsorted result")
			out = items
		}
	}()

	octx := &order.Context{
		User:        rc.User,
		Watch:       e.watch,
		Scores:      rc.Similarities(),
		SeriesNames: rc.SeriesNames(),
		Seed:        orderSeed(rc),
		Logger:      e.logger,
	}
	out = order.Apply(ctx, items, spec, octx)
	return out
}

// limitItems truncates, falling back to the unlimited result on failure.
func (e *Engine) limitItems(items []models.MediaItem, maxItems, maxPlayMinutes int) (out []models.MediaItem) {
	out = items
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("limit stage failed, returning unlimited result")
			out = items
		}
	}()
	out = Limit(items, maxItems, maxPlayMinutes)
	return out
}

// matchSpecial builds the dedicated matcher for special expressions:
// similarity reads the score recorded during Phase 2; collections-only
// resolves membership through the catalog with a per-run cache.
func (e *Engine) matchSpecial(ctx context.Context, rc *RefreshContext) SpecialMatcher {
	return func(expr Expression, op *Operand) bool {
		switch expr.Field {
		case FieldSimilarTo:
			score, ok := rc.Similarity(op.ID)
			if !ok {
				score = e.scoreSimilarity(ctx, expr.Value, op, rc)
			}
			return score > 0

		case FieldCollection:
			members, ok := rc.CollectionMembers(expr.Value)
			if !ok {
				var err error
				members, err = e.catalog.CollectionMembers(ctx, expr.Value)
				if err != nil {
					e.logger.Warn().Err(err).Str("collection", expr.Value).Msg("collection lookup failed")
					members = map[string]struct{}{}
				}
				rc.SetCollectionMembers(expr.Value, members)
			}
			_, in := members[op.ID]
			return in
		}
		return false
	}
}

func (e *Engine) scoreSimilarity(ctx context.Context, referenceID string, op *Operand, rc *RefreshContext) float64 {
	if e.scorer == nil || referenceID == "" {
		return 0
	}
	score, err := e.scorer.Score(ctx, referenceID, op)
	if err != nil {
		e.logger.Debug().Err(err).Str("item", op.ID).Msg("similarity scoring failed")
		return 0
	}
	rc.SetSimilarity(op.ID, score)
	return score
}

// orderSeed picks the run's shared random seed. One seed per run: random
// keys stay consistent within a run and differ across runs.
func orderSeed(_ *RefreshContext) int64 {
	return time.Now().UnixNano()
}

func validateUser(ctx context.Context, users UserResolver, id string) error {
	u, err := users.ResolveUser(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUserNotFound, id, err)
	}
	if u == nil {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return nil
}
