/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"context"

	"github.com/friendsincode/skald/internal/models"
)

// expandSeries replaces each matched series with its episodes that satisfy
// the rule set, when the playlist targets episodes and a collection rule
// opted into expansion. Episodes inherit their series' collection
// membership, so those expressions are not re-applied; everything else is.
// Results are deduplicated by item id across directly-matched and expanded
// episodes. Inactive expansion passes the matched set through untouched.
func (e *Engine) expandSeries(ctx context.Context, matched []models.MediaItem, compiled *CompiledRuleSet, reqs FieldRequirements, rc *RefreshContext) []models.MediaItem {
	if !compiled.ExpandCollections || !rc.HasKind(models.KindEpisode) {
		return matched
	}

	special := e.matchSpecial(ctx, rc)
	seen := make(map[string]struct{}, len(matched))
	out := make([]models.MediaItem, 0, len(matched))

	add := func(item models.MediaItem) {
		if _, dup := seen[item.ID]; dup {
			return
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}

	for _, item := range matched {
		if item.Kind != models.KindSeries {
			add(item)
			continue
		}

		episodes, err := e.catalog.EpisodesOfSeries(ctx, item.ID)
		if err != nil {
			e.logger.Warn().Err(err).Str("series", item.ID).Msg("episode lookup failed, dropping series from expansion")
			continue
		}

		for _, ep := range episodes {
			op, err := e.extractor.Extract(ctx, ep, reqs, rc)
			if err != nil {
				e.excludeItem(ep.ID, err, "extract_episode")
				continue
			}
			op.InheritsCollections = true
			if compiled.MatchItem(op, special, ModeEpisode) {
				add(ep)
			}
		}
	}

	return out
}
