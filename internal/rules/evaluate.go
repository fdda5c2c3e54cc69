/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import "fmt"

// Predicate is a compiled expression over an operand.
type Predicate func(op *Operand) (bool, error)

// CompiledExpression pairs a predicate with the expression it came from, so
// evaluation can reason about the source field and modifiers.
type CompiledExpression struct {
	Source Expression
	Match  Predicate
}

// CompiledGroup is one logic group after compilation. Special expressions
// are carried uncompiled for the dedicated matching path.
type CompiledGroup struct {
	Ordinary []CompiledExpression
	Special  []Expression
}

// SpecialOnly reports whether the group holds nothing but special
// expressions. Such groups are excluded from compiled evaluation but still
// count as rules.
func (g CompiledGroup) SpecialOnly() bool {
	return len(g.Ordinary) == 0 && len(g.Special) > 0
}

// CompiledRuleSet is the cached product of compiling a rule set for one
// default user.
type CompiledRuleSet struct {
	Groups []CompiledGroup

	// SimilarityRef is the reference item id of the first similarity
	// expression, when one exists.
	SimilarityRef string

	// ExpandCollections is set when any collection expression opts into
	// episode expansion.
	ExpandCollections bool
}

// HasRules reports whether the compiled set constrains anything. An
// all-special rule set still counts: its coverage comes from the special
// path, never from a vacuous pass.
func (c *CompiledRuleSet) HasRules() bool {
	for _, g := range c.Groups {
		if len(g.Ordinary) > 0 || len(g.Special) > 0 {
			return true
		}
	}
	return false
}

// EvalMode selects normal or expanded-episode evaluation.
type EvalMode int

const (
	// ModeNormal applies every expression.
	ModeNormal EvalMode = iota
	// ModeEpisode suppresses collection-membership expressions for episodes
	// that inherit membership from their matched parent series.
	ModeEpisode
)

// SpecialMatcher decides special expressions (similarity, collections-only)
// via their dedicated paths. A nil matcher fails every special expression.
type SpecialMatcher func(expr Expression, op *Operand) bool

// MatchItem evaluates the operand against the compiled set: AND within a
// group, OR across groups, returning true on the first matching group. An
// entirely empty rule set matches everything; a set whose groups all
// compiled away to nothing matches nothing.
func (c *CompiledRuleSet) MatchItem(op *Operand, special SpecialMatcher, mode EvalMode) bool {
	if len(c.Groups) == 0 {
		return true
	}
	for _, g := range c.Groups {
		if groupMatches(g, op, special, mode) {
			return true
		}
	}
	return false
}

func groupMatches(g CompiledGroup, op *Operand, special SpecialMatcher, mode EvalMode) bool {
	if len(g.Ordinary) == 0 && len(g.Special) == 0 {
		return false
	}

	for _, ce := range g.Ordinary {
		if suppressed(ce.Source, op, mode) {
			continue
		}
		ok, err := safeEval(ce.Match, op)
		if err != nil || !ok {
			return false
		}
	}

	for _, ex := range g.Special {
		if suppressed(ex, op, mode) {
			continue
		}
		if special == nil || !special(ex, op) {
			return false
		}
	}

	return true
}

// suppressed reports whether an expanded episode inherits this expression's
// satisfaction from its parent series.
func suppressed(expr Expression, op *Operand, mode EvalMode) bool {
	return mode == ModeEpisode && expr.Field == FieldCollection && op.InheritsCollections
}

// Phase1Survives applies only cheap predicates. An item survives when any
// group's cheap predicates all pass, or when some group has no cheap
// predicates at all: such a group cannot be decided until Phase 2, so the
// item advances. Expensive-only groups deliberately over-include here.
func (c *CompiledRuleSet) Phase1Survives(op *Operand) bool {
	if len(c.Groups) == 0 {
		return true
	}
	for _, g := range c.Groups {
		if len(g.Ordinary) == 0 && len(g.Special) == 0 {
			continue
		}

		cheap := 0
		pass := true
		for _, ce := range g.Ordinary {
			if ce.Source.Expensive() {
				continue
			}
			cheap++
			ok, err := safeEval(ce.Match, op)
			if err != nil || !ok {
				pass = false
				break
			}
		}

		if cheap == 0 {
			return true
		}
		if pass {
			return true
		}
	}
	return false
}

// safeEval runs a predicate, converting a panic into a non-match.
func safeEval(pred Predicate, op *Operand) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("predicate panic: %v", r)
		}
	}()
	return pred(op)
}
