/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"time"

	"github.com/friendsincode/skald/internal/models"
)

// Limit walks the ordered sequence once and truncates it by item count and
// cumulative duration. Zero disables either limit. An item with an unknown
// duration contributes nothing to the running total. Whichever limit
// triggers first cuts the list at that point; there is no look-ahead past
// an over-budget item to a later shorter one.
func Limit(items []models.MediaItem, maxCount, maxPlayMinutes int) []models.MediaItem {
	if maxCount <= 0 && maxPlayMinutes <= 0 {
		return items
	}

	budget := time.Duration(maxPlayMinutes) * time.Minute
	var cumulative time.Duration

	out := make([]models.MediaItem, 0, len(items))
	for _, item := range items {
		if maxCount > 0 && len(out) >= maxCount {
			break
		}

		d := item.RunTime
		if d < 0 {
			d = 0
		}
		if budget > 0 && cumulative+d > budget {
			break
		}

		cumulative += d
		out = append(out, item)
	}
	return out
}
