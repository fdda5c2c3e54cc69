package rules

import (
	"testing"
	"time"

	"github.com/friendsincode/skald/internal/models"
)

func timedItems(minutes ...int) []models.MediaItem {
	items := make([]models.MediaItem, len(minutes))
	for i, m := range minutes {
		items[i] = models.MediaItem{
			ID:      string(rune('a' + i)),
			RunTime: time.Duration(m) * time.Minute,
		}
	}
	return items
}

func TestLimit_ZeroLimitsPassEverything(t *testing.T) {
	items := timedItems(10, 20, 30)
	out := Limit(items, 0, 0)
	if len(out) != 3 {
		t.Fatalf("expected all items, got %d", len(out))
	}
}

func TestLimit_CountCutsInOrder(t *testing.T) {
	items := timedItems(10, 20, 30, 40)
	out := Limit(items, 2, 0)
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected first two items, got %v", out)
	}
}

func TestLimit_DurationBudgetNoLookAhead(t *testing.T) {
	// b exceeds the budget; c alone would fit, but the walk stops at b.
	items := timedItems(40, 30, 10)
	out := Limit(items, 0, 60)
	if len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("expected only the first item, got %v", out)
	}
}

func TestLimit_UnknownDurationContributesNothing(t *testing.T) {
	items := []models.MediaItem{
		{ID: "a", RunTime: 30 * time.Minute},
		{ID: "b"}, // unknown duration
		{ID: "c", RunTime: 30 * time.Minute},
	}
	out := Limit(items, 0, 60)
	if len(out) != 3 {
		t.Fatalf("unknown duration should not consume budget, got %d items", len(out))
	}
}

func TestLimit_NegativeDurationClamped(t *testing.T) {
	items := []models.MediaItem{
		{ID: "a", RunTime: -time.Hour},
		{ID: "b", RunTime: 30 * time.Minute},
	}
	out := Limit(items, 0, 30)
	if len(out) != 2 {
		t.Fatalf("negative duration must not extend the budget, got %d items", len(out))
	}
}

func TestLimit_BothLimitsWhicheverFirst(t *testing.T) {
	items := timedItems(10, 10, 10, 10)

	// Count triggers first.
	if out := Limit(items, 2, 400); len(out) != 2 {
		t.Fatalf("count should cut first, got %d", len(out))
	}
	// Duration triggers first.
	if out := Limit(items, 10, 25); len(out) != 2 {
		t.Fatalf("duration should cut first, got %d", len(out))
	}
}
