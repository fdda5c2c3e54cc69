/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"sort"
	"strings"

	"github.com/friendsincode/skald/internal/order"
)

// Analyze inspects a rule set and the active order spec and decides which
// expensive field families extraction must populate for the run. Pure and
// cheap: called once per run, never cached. A field referenced only by a
// sort order still counts (sorting by series name needs the series name
// even when no filter mentions it).
func Analyze(rs RuleSet, spec order.Spec) FieldRequirements {
	req := FieldRequirements{}
	users := map[string]struct{}{}

	for _, group := range rs.Groups {
		for _, e := range group.Expressions {
			switch e.Field {
			case FieldPeople:
				req.People = true
			case FieldCollection:
				req.Collections = true
			case FieldNextUnplayed:
				req.NextUnplayed = true
				if strings.EqualFold(e.Value, "true") {
					req.IncludeUnwatchedSeries = true
				}
			case FieldSeriesName:
				req.SeriesName = true
			case FieldSimilarTo:
				req.Similarity = true
			case FieldAudioLanguage, FieldVideoCodec, FieldAudioChannels, FieldResolution:
				req.MediaStreams = true
			}

			if e.IncludeParentSeries {
				req.InheritedMeta = true
			}
			if e.UserID != "" {
				users[e.UserID] = struct{}{}
			}
		}
	}

	for _, k := range spec {
		switch k.Field {
		case order.FieldSeriesName:
			req.SeriesName = true
		case order.FieldSimilarity:
			req.Similarity = true
		}
	}

	for id := range users {
		req.UserIDs = append(req.UserIDs, id)
	}
	// Deterministic order keeps the requirements reproducible run to run.
	sort.Strings(req.UserIDs)

	return req
}
