/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"strings"

	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/rules"
)

// Metadata overlap weights. Shared genres say more about similarity than
// shared cast.
const (
	genreWeight  = 3.0
	tagWeight    = 2.0
	peopleWeight = 1.0
)

// Score rates an operand against the reference item by weighted metadata
// overlap. Zero means no relation; an unknown reference scores everything
// zero rather than failing the run.
func (s *Service) Score(ctx context.Context, referenceID string, op *rules.Operand) (float64, error) {
	ref, err := s.referenceItem(ctx, referenceID)
	if err != nil {
		return 0, err
	}
	if ref == nil || op.ID == ref.ID {
		return 0, nil
	}

	score := genreWeight*overlap(ref.Genres, op.Genres) +
		tagWeight*overlap(ref.Tags, op.Tags) +
		peopleWeight*overlap(ref.People, op.People)
	return score, nil
}

// referenceItem memoizes reference lookups; the same reference is scored
// against every phase-2 item of a run.
func (s *Service) referenceItem(ctx context.Context, id string) (*models.MediaItem, error) {
	s.refMu.RLock()
	ref, ok := s.refItems[id]
	s.refMu.RUnlock()
	if ok {
		return ref, nil
	}

	item, err := s.Item(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		s.logger.Warn().Str("reference_id", id).Msg("similarity reference not found")
	}

	s.refMu.Lock()
	s.refItems[id] = item
	s.refMu.Unlock()
	return item, nil
}

func overlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[strings.ToLower(v)] = struct{}{}
	}
	var n float64
	for _, v := range b {
		if _, ok := set[strings.ToLower(v)]; ok {
			n++
		}
	}
	return n
}
