/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rules implements the smart playlist evaluation engine: rule
// compilation and caching, two-phase filtering, series expansion, and
// result limiting. Sorting lives in internal/order.
package rules

import (
	"encoding/json"
	"fmt"
)

// Field identifies one evaluatable property of a catalog item. The set is
// closed; extraction populates exactly the fields evaluation asks for.
type Field string

const (
	// Cheap fields, available from the catalog row itself.
	FieldName            Field = "Name"
	FieldOverview        Field = "Overview"
	FieldPath            Field = "Path"
	FieldGenre           Field = "Genre"
	FieldStudio          Field = "Studio"
	FieldTag             Field = "Tag"
	FieldProductionYear  Field = "ProductionYear"
	FieldPremiereDate    Field = "PremiereDate"
	FieldDateCreated     Field = "DateCreated"
	FieldRuntimeMinutes  Field = "RuntimeMinutes"
	FieldCommunityRating Field = "CommunityRating"
	FieldCriticRating    Field = "CriticRating"
	FieldParentalRating  Field = "ParentalRating"
	FieldAlbum           Field = "Album"
	FieldAlbumArtist     Field = "AlbumArtist"
	FieldArtist          Field = "Artist"

	// User-scoped fields, resolved against the expression's user modifier or
	// the run's default user.
	FieldIsPlayed   Field = "IsPlayed"
	FieldIsFavorite Field = "IsFavorite"
	FieldPlayCount  Field = "PlayCount"
	FieldLastPlayed Field = "LastPlayed"

	// Expensive fields, requiring an additional lookup during extraction.
	FieldPeople        Field = "People"
	FieldCollection    Field = "Collection"
	FieldNextUnplayed  Field = "NextUnplayed"
	FieldSeriesName    Field = "SeriesName"
	FieldAudioLanguage Field = "AudioLanguage"
	FieldVideoCodec    Field = "VideoCodec"
	FieldAudioChannels Field = "AudioChannels"
	FieldResolution    Field = "Resolution"

	// Special field, excluded from compiled evaluation.
	FieldSimilarTo Field = "SimilarTo"
)

// Expensive reports whether evaluating the field needs an extraction lookup
// beyond the catalog row.
func (f Field) Expensive() bool {
	switch f {
	case FieldPeople, FieldCollection, FieldNextUnplayed, FieldSeriesName,
		FieldAudioLanguage, FieldVideoCodec, FieldAudioChannels, FieldResolution,
		FieldSimilarTo:
		return true
	}
	return false
}

// UserScoped reports whether the field reads per-user watch state.
func (f Field) UserScoped() bool {
	switch f {
	case FieldIsPlayed, FieldIsFavorite, FieldPlayCount, FieldLastPlayed, FieldNextUnplayed:
		return true
	}
	return false
}

// Operator is a comparison applied between a field and a target value.
type Operator string

const (
	OpEqual              Operator = "Equal"
	OpNotEqual           Operator = "NotEqual"
	OpContains           Operator = "Contains"
	OpNotContains        Operator = "NotContains"
	OpGreaterThan        Operator = "GreaterThan"
	OpGreaterThanOrEqual Operator = "GreaterThanOrEqual"
	OpLessThan           Operator = "LessThan"
	OpLessThanOrEqual    Operator = "LessThanOrEqual"
	OpMatchRegex         Operator = "MatchRegex"
	OpIn                 Operator = "In"
)

// Expression is one field/operator/value rule with optional modifiers.
// Immutable once handed to the compiler.
type Expression struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`

	// UserID scopes a user-scoped field to a specific user instead of the
	// run's default user.
	UserID string `json:"user_id,omitempty"`
	// IncludeParentSeries also matches the parent series' value for
	// genre/tag/studio expressions on episodes.
	IncludeParentSeries bool `json:"include_parent_series,omitempty"`
	// DefaultTrackOnly restricts AudioLanguage to the default track.
	DefaultTrackOnly bool `json:"default_track_only,omitempty"`
	// CollectionsOnly marks a Collection expression as matched purely via
	// collection membership, outside compiled evaluation.
	CollectionsOnly bool `json:"collections_only,omitempty"`
	// ExpandToEpisodes opts a Collection expression into replacing matched
	// series with their matching episodes.
	ExpandToEpisodes bool `json:"expand_to_episodes,omitempty"`
}

// Special reports whether the expression is excluded from compiled boolean
// evaluation and handled by a dedicated path.
func (e Expression) Special() bool {
	return e.Field == FieldSimilarTo || (e.Field == FieldCollection && e.CollectionsOnly)
}

// Expensive reports whether the expression needs expensive extraction.
// The parent-series modifier forces a series lookup even on cheap fields.
func (e Expression) Expensive() bool {
	return e.Field.Expensive() || e.IncludeParentSeries
}

// LogicGroup is one AND-clause: every expression must hold.
type LogicGroup struct {
	Expressions []Expression `json:"expressions"`
}

// RuleSet is an ordered list of logic groups combined with OR.
type RuleSet struct {
	Groups []LogicGroup `json:"groups"`
}

// Empty reports whether the rule set constrains nothing at all.
func (r RuleSet) Empty() bool {
	return len(r.Groups) == 0
}

// ParseRuleSet decodes a persisted rule document.
func ParseRuleSet(doc map[string]any) (RuleSet, error) {
	if doc == nil {
		return RuleSet{}, nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return RuleSet{}, fmt.Errorf("encode rule document: %w", err)
	}

	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("decode rule document: %w", err)
	}
	return rs, nil
}
