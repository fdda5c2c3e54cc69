/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package expr compiles rule expressions into predicates over item operands.
// All value parsing and regex compilation happens once at compile time; the
// returned predicates only read the operand.
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/skald/internal/rules"
	"github.com/rs/zerolog"
)

// Compiler translates one expression at a time. Stateless apart from the
// logger; safe for concurrent use.
type Compiler struct {
	logger zerolog.Logger
}

// NewCompiler builds an expression compiler.
func NewCompiler(logger zerolog.Logger) *Compiler {
	return &Compiler{logger: logger.With().Str("component", "expr").Logger()}
}

// CompileExpression implements rules.Compiler. Unknown fields, unknown
// operators, and malformed values are compile-time errors.
func (c *Compiler) CompileExpression(e rules.Expression, defaultUserID string) (rules.Predicate, error) {
	userID := e.UserID
	if userID == "" {
		userID = defaultUserID
	}

	switch e.Field {
	case rules.FieldName:
		return stringPredicate(e, func(op *rules.Operand) string { return op.Name })
	case rules.FieldOverview:
		return stringPredicate(e, func(op *rules.Operand) string { return op.Overview })
	case rules.FieldPath:
		return stringPredicate(e, func(op *rules.Operand) string { return op.Path })
	case rules.FieldParentalRating:
		return stringPredicate(e, func(op *rules.Operand) string { return op.ParentalRating })
	case rules.FieldAlbum:
		return stringPredicate(e, func(op *rules.Operand) string { return op.Album })
	case rules.FieldAlbumArtist:
		return stringPredicate(e, func(op *rules.Operand) string { return op.AlbumArtist })
	case rules.FieldArtist:
		return stringPredicate(e, func(op *rules.Operand) string { return op.Artist })
	case rules.FieldSeriesName:
		return stringPredicate(e, func(op *rules.Operand) string { return op.SeriesName })
	case rules.FieldResolution:
		return stringPredicate(e, func(op *rules.Operand) string { return op.Resolution })

	case rules.FieldGenre:
		return listPredicate(e, func(op *rules.Operand) []string { return op.Genres })
	case rules.FieldStudio:
		return listPredicate(e, func(op *rules.Operand) []string { return op.Studios })
	case rules.FieldTag:
		return listPredicate(e, func(op *rules.Operand) []string { return op.Tags })
	case rules.FieldPeople:
		return listPredicate(e, func(op *rules.Operand) []string { return op.People })
	case rules.FieldCollection:
		return listPredicate(e, func(op *rules.Operand) []string { return op.Collections })
	case rules.FieldVideoCodec:
		return listPredicate(e, func(op *rules.Operand) []string { return op.VideoCodecs })
	case rules.FieldAudioLanguage:
		if e.DefaultTrackOnly {
			return stringPredicate(e, func(op *rules.Operand) string { return op.DefaultAudioLanguage })
		}
		return listPredicate(e, func(op *rules.Operand) []string { return op.AudioLanguages })

	case rules.FieldProductionYear:
		return numberPredicate(e, func(op *rules.Operand) float64 { return float64(op.ProductionYear) })
	case rules.FieldRuntimeMinutes:
		return numberPredicate(e, func(op *rules.Operand) float64 { return op.RuntimeMinutes })
	case rules.FieldCommunityRating:
		return numberPredicate(e, func(op *rules.Operand) float64 { return op.CommunityRating })
	case rules.FieldCriticRating:
		return numberPredicate(e, func(op *rules.Operand) float64 { return op.CriticRating })
	case rules.FieldAudioChannels:
		return numberPredicate(e, func(op *rules.Operand) float64 { return float64(op.AudioChannels) })
	case rules.FieldPlayCount:
		return numberPredicate(e, func(op *rules.Operand) float64 {
			return float64(op.UserData[userID].PlayCount)
		})

	case rules.FieldPremiereDate:
		return timePredicate(e, func(op *rules.Operand) time.Time { return op.PremiereDate })
	case rules.FieldDateCreated:
		return timePredicate(e, func(op *rules.Operand) time.Time { return op.DateCreated })
	case rules.FieldLastPlayed:
		return timePredicate(e, func(op *rules.Operand) time.Time {
			return op.UserData[userID].LastPlayed
		})

	case rules.FieldIsPlayed:
		return boolPredicate(e, func(op *rules.Operand) bool { return op.UserData[userID].Played })
	case rules.FieldIsFavorite:
		return boolPredicate(e, func(op *rules.Operand) bool { return op.UserData[userID].Favorite })
	case rules.FieldNextUnplayed:
		return boolPredicate(e, func(op *rules.Operand) bool { return op.NextUnplayed })

	case rules.FieldSimilarTo:
		return nil, fmt.Errorf("field %s is not compilable", e.Field)
	}

	return nil, fmt.Errorf("unknown field: %s", e.Field)
}

func stringPredicate(e rules.Expression, get func(*rules.Operand) string) (rules.Predicate, error) {
	target := strings.ToLower(e.Value)

	switch e.Operator {
	case rules.OpEqual:
		return func(op *rules.Operand) (bool, error) {
			return strings.ToLower(get(op)) == target, nil
		}, nil
	case rules.OpNotEqual:
		return func(op *rules.Operand) (bool, error) {
			return strings.ToLower(get(op)) != target, nil
		}, nil
	case rules.OpContains:
		return func(op *rules.Operand) (bool, error) {
			return strings.Contains(strings.ToLower(get(op)), target), nil
		}, nil
	case rules.OpNotContains:
		return func(op *rules.Operand) (bool, error) {
			return !strings.Contains(strings.ToLower(get(op)), target), nil
		}, nil
	case rules.OpMatchRegex:
		re, err := regexp.Compile(e.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", e.Value, err)
		}
		return func(op *rules.Operand) (bool, error) {
			return re.MatchString(get(op)), nil
		}, nil
	case rules.OpIn:
		set := splitList(e.Value)
		return func(op *rules.Operand) (bool, error) {
			_, ok := set[strings.ToLower(get(op))]
			return ok, nil
		}, nil
	}

	return nil, unsupportedOperator(e)
}

func listPredicate(e rules.Expression, get func(*rules.Operand) []string) (rules.Predicate, error) {
	target := strings.ToLower(e.Value)

	anyOf := func(op *rules.Operand, match func(string) bool) bool {
		for _, v := range get(op) {
			if match(strings.ToLower(v)) {
				return true
			}
		}
		return false
	}

	switch e.Operator {
	case rules.OpEqual, rules.OpContains:
		return func(op *rules.Operand) (bool, error) {
			return anyOf(op, func(v string) bool { return v == target }), nil
		}, nil
	case rules.OpNotEqual, rules.OpNotContains:
		return func(op *rules.Operand) (bool, error) {
			return !anyOf(op, func(v string) bool { return v == target }), nil
		}, nil
	case rules.OpMatchRegex:
		re, err := regexp.Compile(e.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", e.Value, err)
		}
		return func(op *rules.Operand) (bool, error) {
			for _, v := range get(op) {
				if re.MatchString(v) {
					return true, nil
				}
			}
			return false, nil
		}, nil
	case rules.OpIn:
		set := splitList(e.Value)
		return func(op *rules.Operand) (bool, error) {
			return anyOf(op, func(v string) bool {
				_, ok := set[v]
				return ok
			}), nil
		}, nil
	}

	return nil, unsupportedOperator(e)
}

func numberPredicate(e rules.Expression, get func(*rules.Operand) float64) (rules.Predicate, error) {
	if e.Operator == rules.OpIn {
		parts := strings.Split(e.Value, ",")
		targets := make([]float64, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q: %w", p, err)
			}
			targets = append(targets, n)
		}
		return func(op *rules.Operand) (bool, error) {
			v := get(op)
			for _, t := range targets {
				if v == t {
					return true, nil
				}
			}
			return false, nil
		}, nil
	}

	target, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", e.Value, err)
	}

	switch e.Operator {
	case rules.OpEqual:
		return func(op *rules.Operand) (bool, error) { return get(op) == target, nil }, nil
	case rules.OpNotEqual:
		return func(op *rules.Operand) (bool, error) { return get(op) != target, nil }, nil
	case rules.OpGreaterThan:
		return func(op *rules.Operand) (bool, error) { return get(op) > target, nil }, nil
	case rules.OpGreaterThanOrEqual:
		return func(op *rules.Operand) (bool, error) { return get(op) >= target, nil }, nil
	case rules.OpLessThan:
		return func(op *rules.Operand) (bool, error) { return get(op) < target, nil }, nil
	case rules.OpLessThanOrEqual:
		return func(op *rules.Operand) (bool, error) { return get(op) <= target, nil }, nil
	}

	return nil, unsupportedOperator(e)
}

// timeLayouts are tried in order when parsing date values.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

func timePredicate(e rules.Expression, get func(*rules.Operand) time.Time) (rules.Predicate, error) {
	target, err := parseTime(e.Value)
	if err != nil {
		return nil, err
	}

	switch e.Operator {
	case rules.OpEqual:
		return func(op *rules.Operand) (bool, error) { return get(op).Equal(target), nil }, nil
	case rules.OpNotEqual:
		return func(op *rules.Operand) (bool, error) { return !get(op).Equal(target), nil }, nil
	case rules.OpGreaterThan:
		return func(op *rules.Operand) (bool, error) { return get(op).After(target), nil }, nil
	case rules.OpGreaterThanOrEqual:
		return func(op *rules.Operand) (bool, error) { return !get(op).Before(target), nil }, nil
	case rules.OpLessThan:
		return func(op *rules.Operand) (bool, error) { return get(op).Before(target), nil }, nil
	case rules.OpLessThanOrEqual:
		return func(op *rules.Operand) (bool, error) { return !get(op).After(target), nil }, nil
	}

	return nil, unsupportedOperator(e)
}

func boolPredicate(e rules.Expression, get func(*rules.Operand) bool) (rules.Predicate, error) {
	target, err := strconv.ParseBool(strings.TrimSpace(e.Value))
	if err != nil {
		return nil, fmt.Errorf("invalid boolean %q: %w", e.Value, err)
	}

	switch e.Operator {
	case rules.OpEqual:
		return func(op *rules.Operand) (bool, error) { return get(op) == target, nil }, nil
	case rules.OpNotEqual:
		return func(op *rules.Operand) (bool, error) { return get(op) != target, nil }, nil
	}

	return nil, unsupportedOperator(e)
}

func splitList(value string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range strings.Split(value, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func unsupportedOperator(e rules.Expression) error {
	return fmt.Errorf("operator %s not supported for field %s", e.Operator, e.Field)
}
