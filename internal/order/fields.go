/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package order

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/friendsincode/skald/internal/models"
)

// Value is a comparable sort key: an ordered list of numeric or string
// parts compared lexicographically. Multi-level orders (season→episode→
// title, album→disc→track→title) encode their whole tie-break chain into
// one value so bulk and single-key comparison cannot diverge.
type Value struct {
	parts []part
}

type part struct {
	str   string
	num   float64
	isStr bool
}

func numPart(n float64) part    { return part{num: n} }
func strPart(s string) part     { return part{str: strings.ToLower(s), isStr: true} }
func value(parts ...part) Value { return Value{parts: parts} }

// Compare returns -1, 0, or 1.
func (v Value) Compare(other Value) int {
	n := len(v.parts)
	if len(other.parts) < n {
		n = len(other.parts)
	}
	for i := 0; i < n; i++ {
		a, b := v.parts[i], other.parts[i]
		if a.isStr || b.isStr {
			if c := strings.Compare(a.str, b.str); c != 0 {
				return c
			}
			continue
		}
		if a.num < b.num {
			return -1
		}
		if a.num > b.num {
			return 1
		}
	}
	switch {
	case len(v.parts) < len(other.parts):
		return -1
	case len(v.parts) > len(other.parts):
		return 1
	}
	return 0
}

// runContext shares per-run state between key computations: the random
// assignment and a watch-data cache.
type runContext struct {
	ctx  context.Context
	octx *Context
	seed [8]byte
}

func newRunContext(ctx context.Context, octx *Context) *runContext {
	rc := &runContext{ctx: ctx, octx: octx}
	binary.LittleEndian.PutUint64(rc.seed[:], uint64(octx.Seed))
	return rc
}

// randomKey derives the item's random assignment from the run seed and the
// item id. One seed per run means ties against other cascade keys resolve
// the same way throughout the run, while different runs shuffle differently.
// Hashing instead of drawing from a sequential source keeps the value
// independent of evaluation order, which the bulk/single-key agreement
// requires.
func (rc *runContext) randomKey(itemID string) float64 {
	h := xxhash.New()
	_, _ = h.Write(rc.seed[:])
	_, _ = h.WriteString(itemID)
	return float64(h.Sum64()) / float64(math.MaxUint64)
}

func (rc *runContext) watchData(itemID string) models.UserItemData {
	if rc.octx.User == nil || rc.octx.Watch == nil {
		return models.UserItemData{}
	}
	data, err := rc.octx.Watch.WatchData(rc.ctx, rc.octx.User.ID, itemID)
	if err != nil {
		rc.octx.Logger.Debug().Err(err).Str("item", itemID).Msg("watch data lookup failed, sorting as unplayed")
		return models.UserItemData{}
	}
	return data
}

func (rc *runContext) seriesName(item *models.MediaItem) string {
	if item.Kind == models.KindSeries {
		return item.Name
	}
	if name, ok := rc.octx.SeriesNames[item.SeriesID]; ok {
		return name
	}
	return ""
}

type definition struct {
	directionless bool
	userScoped    bool
	key           func(item *models.MediaItem, rc *runContext) Value
}

// definitions is the closed dispatch table of order strategies. Each entry
// produces the key used by both the bulk and the cascading path.
var definitions = map[Field]definition{
	FieldName: {
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(strPart(sortName(it)), numPart(float64(it.ProductionYear)))
		},
	},
	FieldProductionYear: {
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(numPart(float64(it.ProductionYear)), numPart(timeKey(it.PremiereDate)), strPart(sortName(it)))
		},
	},
	FieldPremiereDate: {
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(numPart(timeKey(it.PremiereDate)), strPart(sortName(it)))
		},
	},
	FieldDateCreated: {
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(numPart(timeKey(it.DateCreated)), strPart(sortName(it)))
		},
	},
	FieldCommunityRating: {
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(numPart(it.CommunityRating), strPart(sortName(it)))
		},
	},
	FieldCriticRating: {
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(numPart(it.CriticRating), strPart(sortName(it)))
		},
	},
	FieldRuntime: {
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(numPart(it.RunTime.Minutes()), strPart(sortName(it)))
		},
	},
	FieldSeriesName: {
		key: func(it *models.MediaItem, rc *runContext) Value {
			return value(strPart(rc.seriesName(it)), numPart(float64(it.SeasonNumber)), numPart(float64(it.EpisodeNumber)))
		},
	},
	FieldEpisode: {
		// season -> episode -> title, in both paths.
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(numPart(float64(it.SeasonNumber)), numPart(float64(it.EpisodeNumber)), strPart(sortName(it)))
		},
	},
	FieldAlbumTrack: {
		// album -> disc -> track -> title, in both paths.
		key: func(it *models.MediaItem, _ *runContext) Value {
			return value(strPart(it.Album), numPart(float64(it.DiscNumber)), numPart(float64(it.TrackNumber)), strPart(sortName(it)))
		},
	},
	FieldPlayCount: {
		userScoped: true,
		key: func(it *models.MediaItem, rc *runContext) Value {
			data := rc.watchData(it.ID)
			return value(numPart(float64(data.PlayCount)), strPart(sortName(it)))
		},
	},
	FieldLastPlayed: {
		userScoped: true,
		key: func(it *models.MediaItem, rc *runContext) Value {
			data := rc.watchData(it.ID)
			return value(numPart(timeKey(data.LastPlayed)), strPart(sortName(it)))
		},
	},
	FieldSimilarity: {
		// Items the run never scored sort as the lowest value.
		key: func(it *models.MediaItem, rc *runContext) Value {
			score, ok := rc.octx.Scores[it.ID]
			if !ok {
				score = math.Inf(-1)
			}
			return value(numPart(score), strPart(sortName(it)))
		},
	},
	FieldRandom: {
		directionless: true,
		key: func(it *models.MediaItem, rc *runContext) Value {
			return value(numPart(rc.randomKey(it.ID)))
		},
	},
	FieldNone: {
		directionless: true,
		key: func(_ *models.MediaItem, _ *runContext) Value {
			return value()
		},
	},
}

func sortName(it *models.MediaItem) string {
	if it.SortName != "" {
		return it.SortName
	}
	return it.Name
}

func timeKey(t time.Time) float64 {
	if t.IsZero() {
		return math.Inf(-1)
	}
	return float64(t.UnixMilli())
}
