/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"sync"

	"github.com/friendsincode/skald/internal/models"
)

// ProgressFunc receives (processed, total) at chunk boundaries.
type ProgressFunc func(processed, total int)

// RefreshContext carries the acting user and shared per-run caches across
// one engine invocation. The engine and the extraction function read and
// append; nothing is removed until the run ends.
type RefreshContext struct {
	PlaylistID string
	User       *models.User
	MediaKinds []models.MediaKind
	Progress   ProgressFunc

	mu          sync.RWMutex
	seriesNames map[string]string
	watch       map[string]models.UserItemData
	similarity  map[string]float64
	collections map[string]map[string]struct{}
}

// NewRefreshContext builds a context for one run.
func NewRefreshContext(playlistID string, user *models.User, kinds []models.MediaKind) *RefreshContext {
	return &RefreshContext{
		PlaylistID:  playlistID,
		User:        user,
		MediaKinds:  kinds,
		seriesNames: make(map[string]string),
		watch:       make(map[string]models.UserItemData),
		similarity:  make(map[string]float64),
		collections: make(map[string]map[string]struct{}),
	}
}

// DefaultUserID returns the acting user's id, or "" when no user is set.
func (rc *RefreshContext) DefaultUserID() string {
	if rc.User == nil {
		return ""
	}
	return rc.User.ID
}

// HasKind reports whether the run's media selection includes the kind.
func (rc *RefreshContext) HasKind(kind models.MediaKind) bool {
	for _, k := range rc.MediaKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// SeriesName returns a cached series name lookup.
func (rc *RefreshContext) SeriesName(seriesID string) (string, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	name, ok := rc.seriesNames[seriesID]
	return name, ok
}

// SetSeriesName caches a series name lookup for the rest of the run.
func (rc *RefreshContext) SetSeriesName(seriesID, name string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.seriesNames[seriesID] = name
}

// SeriesNames returns a copy of the cached series name lookups.
func (rc *RefreshContext) SeriesNames() map[string]string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]string, len(rc.seriesNames))
	for k, v := range rc.seriesNames {
		out[k] = v
	}
	return out
}

func watchKey(userID, itemID string) string {
	return userID + "\x00" + itemID
}

// WatchData returns cached watch state for (user, item).
func (rc *RefreshContext) WatchData(userID, itemID string) (models.UserItemData, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	data, ok := rc.watch[watchKey(userID, itemID)]
	return data, ok
}

// SetWatchData caches watch state for (user, item).
func (rc *RefreshContext) SetWatchData(userID, itemID string, data models.UserItemData) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.watch[watchKey(userID, itemID)] = data
}

// Similarity returns the item's similarity score for this run.
func (rc *RefreshContext) Similarity(itemID string) (float64, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	score, ok := rc.similarity[itemID]
	return score, ok
}

// SetSimilarity records the item's similarity score for this run.
func (rc *RefreshContext) SetSimilarity(itemID string, score float64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.similarity[itemID] = score
}

// ResetSimilarities clears all similarity scores. Called at the start of
// every evaluation run; scores are transient and never persisted.
func (rc *RefreshContext) ResetSimilarities() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.similarity = make(map[string]float64)
}

// Similarities returns a copy of the run's similarity scores.
func (rc *RefreshContext) Similarities() map[string]float64 {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]float64, len(rc.similarity))
	for k, v := range rc.similarity {
		out[k] = v
	}
	return out
}

// CollectionMembers returns a cached collection membership set.
func (rc *RefreshContext) CollectionMembers(name string) (map[string]struct{}, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	members, ok := rc.collections[name]
	return members, ok
}

// SetCollectionMembers caches a collection membership set for the run.
func (rc *RefreshContext) SetCollectionMembers(name string, members map[string]struct{}) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.collections[name] = members
}
