/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package order implements the multi-key sort framework for smart playlist
// results: a closed set of order fields dispatched through one key-function
// table, so bulk sorting and cascading tuple comparison share the same
// logic by construction.
package order

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/models"
)

// Field names one order strategy.
type Field string

const (
	FieldName            Field = "Name"
	FieldProductionYear  Field = "ProductionYear"
	FieldPremiereDate    Field = "PremiereDate"
	FieldDateCreated     Field = "DateCreated"
	FieldCommunityRating Field = "CommunityRating"
	FieldCriticRating    Field = "CriticRating"
	FieldRuntime         Field = "Runtime"
	FieldSeriesName      Field = "SeriesName"
	FieldEpisode         Field = "Episode"
	FieldAlbumTrack      Field = "AlbumTrack"
	FieldPlayCount       Field = "PlayCount"
	FieldLastPlayed      Field = "LastPlayed"
	FieldSimilarity      Field = "Similarity"

	// Directionless pseudo-orders. Neither ever carries an
	// ascending/descending direction.
	FieldRandom Field = "Random"
	FieldNone   Field = "None"
)

// Key is one (field, direction) pair of an order spec.
type Key struct {
	Field      Field
	Descending bool
}

// Spec is the ordered list of keys of a cascading sort.
type Spec []Key

// WatchSource supplies per-user watch state for user-scoped orders.
type WatchSource interface {
	WatchData(ctx context.Context, userID, itemID string) (models.UserItemData, error)
}

// Context carries the run-scoped inputs order strategies may need.
type Context struct {
	User        *models.User
	Watch       WatchSource
	Scores      map[string]float64
	SeriesNames map[string]string
	Seed        int64
	Logger      zerolog.Logger
}

// Validate rejects unknown fields and directions on directionless orders.
func (k Key) Validate() error {
	def, ok := definitions[k.Field]
	if !ok {
		return fmt.Errorf("unknown order field %q", k.Field)
	}
	if def.directionless && k.Descending {
		return fmt.Errorf("order field %q does not take a direction", k.Field)
	}
	return nil
}

// ParseSpec converts persisted order entries into a validated spec.
func ParseSpec(entries []models.OrderEntry) (Spec, error) {
	spec := make(Spec, 0, len(entries))
	for _, e := range entries {
		k := Key{Field: Field(e.Field), Descending: e.Descending}
		if err := k.Validate(); err != nil {
			return nil, err
		}
		spec = append(spec, k)
	}
	return spec, nil
}

// OrderBy sorts items by a single order. Identical in outcome to sorting by
// the order's SortKey alone.
func OrderBy(ctx context.Context, items []models.MediaItem, k Key, octx *Context) []models.MediaItem {
	return Apply(ctx, items, Spec{k}, octx)
}

// SortKey computes the item's comparable key for one order. The cascade
// path sorts by tuples of these values; the single-order path uses the same
// key function, so the two always agree.
func SortKey(ctx context.Context, item models.MediaItem, k Key, octx *Context) Value {
	def, ok := definitions[k.Field]
	if !ok {
		return Value{}
	}
	rc := newRunContext(ctx, octx)
	return def.key(&item, rc)
}

// Apply sorts items by the spec's keys in listed order, each key honoring
// its own direction. The sort is stable: items tied on every key keep their
// input order. Unknown fields, the no-op order, and user-scoped orders
// lacking a user or watch source are logged and skipped rather than failing
// the operation.
func Apply(ctx context.Context, items []models.MediaItem, spec Spec, octx *Context) []models.MediaItem {
	usable := make(Spec, 0, len(spec))
	for _, k := range spec {
		def, ok := definitions[k.Field]
		if !ok {
			octx.Logger.Warn().Str("field", string(k.Field)).Msg("unknown order field, skipping")
			continue
		}
		if k.Field == FieldNone {
			continue
		}
		if def.userScoped && (octx.User == nil || octx.Watch == nil) {
			octx.Logger.Warn().Str("field", string(k.Field)).Msg("user-scoped order without user context, leaving items unsorted")
			continue
		}
		usable = append(usable, k)
	}
	if len(usable) == 0 || len(items) < 2 {
		return items
	}

	rc := newRunContext(ctx, octx)

	type decorated struct {
		item models.MediaItem
		keys []Value
	}
	dec := make([]decorated, len(items))
	for i, it := range items {
		dec[i] = decorated{item: it, keys: make([]Value, len(usable))}
		for j, k := range usable {
			dec[i].keys[j] = definitions[k.Field].key(&dec[i].item, rc)
		}
	}

	sort.SliceStable(dec, func(a, b int) bool {
		for j, k := range usable {
			c := dec[a].keys[j].Compare(dec[b].keys[j])
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	out := make([]models.MediaItem, len(dec))
	for i, d := range dec {
		out[i] = d.item
	}
	return out
}
