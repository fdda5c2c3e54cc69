/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"context"

	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/telemetry"
)

// filterItems runs the two-phase filtering pipeline over the candidate
// stream in fixed-size chunks. Every user id referenced by an expression is
// validated up front: an unresolvable user aborts the run, since continuing
// would silently produce an incomplete result. Per-item failures exclude
// the item; a chunk-level panic skips the chunk's remaining items and later
// chunks still run.
func (e *Engine) filterItems(ctx context.Context, items []models.MediaItem, compiled *CompiledRuleSet, reqs FieldRequirements, rc *RefreshContext) ([]models.MediaItem, error) {
	for _, uid := range reqs.UserIDs {
		if err := validateUser(ctx, e.users, uid); err != nil {
			return nil, err
		}
	}

	special := e.matchSpecial(ctx, rc)
	total := len(items)
	matched := make([]models.MediaItem, 0, total/2)

	for start := 0; start < total; start += e.batchSize {
		end := start + e.batchSize
		if end > total {
			end = total
		}
		chunk := items[start:end]

		func() {
			defer func() {
				if r := recover(); r != nil {
					telemetry.FilterChunkPanicsTotal.Inc()
					e.logger.Error().Interface("panic", r).
						Int("chunk_start", start).
						Msg("chunk processing failed, skipping remainder of chunk")
				}
			}()
			matched = append(matched, e.filterChunk(ctx, chunk, compiled, reqs, rc, special)...)
		}()

		telemetry.FilterItemsProcessedTotal.Add(float64(len(chunk)))
		if rc.Progress != nil {
			rc.Progress(end, total)
		}
	}

	return matched, nil
}

func (e *Engine) filterChunk(ctx context.Context, chunk []models.MediaItem, compiled *CompiledRuleSet, reqs FieldRequirements, rc *RefreshContext, special SpecialMatcher) []models.MediaItem {
	out := make([]models.MediaItem, 0, len(chunk))

	// Fast path: no rule or order needs an expensive field, so one cheap
	// extraction per item decides everything.
	if !reqs.AnyExpensive() {
		for _, item := range chunk {
			op, err := e.extractor.Extract(ctx, item, reqs, rc)
			if err != nil {
				e.excludeItem(item.ID, err, "extract_cheap")
				continue
			}
			if compiled.MatchItem(op, special, ModeNormal) {
				out = append(out, item)
			}
		}
		return out
	}

	// Phase 1: cheap fields only, to shrink the working set before any
	// expensive extraction happens.
	survivors := make([]models.MediaItem, 0, len(chunk))
	cheapOpts := reqs.CheapOnly()
	for _, item := range chunk {
		op, err := e.extractor.Extract(ctx, item, cheapOpts, rc)
		if err != nil {
			e.excludeItem(item.ID, err, "extract_cheap")
			continue
		}
		if compiled.Phase1Survives(op) {
			survivors = append(survivors, item)
		}
	}

	// Phase 2: full extraction for survivors only, complete predicate set,
	// similarity recorded per item while we are here.
	for _, item := range survivors {
		op, err := e.extractor.Extract(ctx, item, reqs, rc)
		if err != nil {
			e.excludeItem(item.ID, err, "extract_full")
			continue
		}
		if reqs.Similarity && compiled.SimilarityRef != "" {
			e.scoreSimilarity(ctx, compiled.SimilarityRef, op, rc)
		}
		if compiled.MatchItem(op, special, ModeNormal) {
			out = append(out, item)
		}
	}
	return out
}

func (e *Engine) excludeItem(itemID string, err error, stage string) {
	telemetry.FilterItemErrorsTotal.WithLabelValues(stage).Inc()
	e.logger.Warn().Err(err).Str("item", itemID).Str("stage", stage).Msg("item excluded after evaluation error")
}
