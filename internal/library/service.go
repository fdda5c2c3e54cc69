/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library reads the synced media catalog: candidate queries, series
// and collection lookups, per-user watch state, and operand extraction for
// the rules engine.
package library

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/skald/internal/cache"
	"github.com/friendsincode/skald/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// collectionsTTL bounds how stale the in-process collection index may get.
const collectionsTTL = time.Minute

// Service is the catalog access layer. One instance serves all concurrent
// refresh runs.
type Service struct {
	db     *gorm.DB
	redis  *cache.Cache
	logger zerolog.Logger

	// Collection index, rebuilt lazily. Maps collection name to member set.
	colMu       sync.RWMutex
	collections map[string]map[string]struct{}
	colLoaded   time.Time

	// Similarity reference items, memoized for the process lifetime.
	refMu    sync.RWMutex
	refItems map[string]*models.MediaItem
}

// NewService builds a catalog service. redis may be a disabled cache.
func NewService(db *gorm.DB, redis *cache.Cache, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		redis:    redis,
		logger:   logger.With().Str("component", "library").Logger(),
		refItems: make(map[string]*models.MediaItem),
	}
}

// Candidates returns the enabled catalog rows matching the playlist's media
// kinds. An empty kind list selects the whole catalog.
func (s *Service) Candidates(ctx context.Context, kinds []models.MediaKind) ([]models.MediaItem, error) {
	var items []models.MediaItem
	q := s.db.WithContext(ctx).Model(&models.MediaItem{})
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	return items, nil
}

// Item returns one catalog row by id.
func (s *Service) Item(ctx context.Context, id string) (*models.MediaItem, error) {
	var item models.MediaItem
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item %s: %w", id, err)
	}
	return &item, nil
}

// EpisodesOfSeries returns a series' episodes in season/episode order.
func (s *Service) EpisodesOfSeries(ctx context.Context, seriesID string) ([]models.MediaItem, error) {
	var episodes []models.MediaItem
	err := s.db.WithContext(ctx).
		Where("kind = ? AND series_id = ?", models.KindEpisode, seriesID).
		Order("season_number, episode_number").
		Find(&episodes).Error
	if err != nil {
		return nil, fmt.Errorf("query episodes of %s: %w", seriesID, err)
	}
	return episodes, nil
}

// CollectionMembers returns the member set of a named collection. Unknown
// names return an empty set.
func (s *Service) CollectionMembers(ctx context.Context, name string) (map[string]struct{}, error) {
	index, err := s.collectionIndex(ctx)
	if err != nil {
		return nil, err
	}
	members, ok := index[name]
	if !ok {
		return map[string]struct{}{}, nil
	}
	return members, nil
}

// collectionsOf returns the names of collections containing the item.
func (s *Service) collectionsOf(ctx context.Context, itemID string) ([]string, error) {
	index, err := s.collectionIndex(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for name, members := range index {
		if _, ok := members[itemID]; ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Service) collectionIndex(ctx context.Context) (map[string]map[string]struct{}, error) {
	s.colMu.RLock()
	if s.collections != nil && time.Since(s.colLoaded) < collectionsTTL {
		index := s.collections
		s.colMu.RUnlock()
		return index, nil
	}
	s.colMu.RUnlock()

	var cols []models.Collection
	if err := s.db.WithContext(ctx).Find(&cols).Error; err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}

	index := make(map[string]map[string]struct{}, len(cols))
	for _, col := range cols {
		members := make(map[string]struct{}, len(col.ItemIDs))
		for _, id := range col.ItemIDs {
			members[id] = struct{}{}
		}
		index[col.Name] = members
	}

	s.colMu.Lock()
	s.collections = index
	s.colLoaded = time.Now()
	s.colMu.Unlock()

	return index, nil
}

// ResolveUser returns the user row, or (nil, nil) when no such user exists.
func (s *Service) ResolveUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", id, err)
	}
	return &user, nil
}

// WatchData returns per-user watch state for an item. A missing row is a
// zero value, not an error.
func (s *Service) WatchData(ctx context.Context, userID, itemID string) (models.UserItemData, error) {
	if s.redis != nil {
		if data, ok := s.redis.GetWatchData(ctx, userID, itemID); ok {
			return *data, nil
		}
	}

	var data models.UserItemData
	err := s.db.WithContext(ctx).
		First(&data, "user_id = ? AND item_id = ?", userID, itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.UserItemData{UserID: userID, ItemID: itemID}, nil
	}
	if err != nil {
		return models.UserItemData{}, fmt.Errorf("query watch data: %w", err)
	}

	if s.redis != nil {
		_ = s.redis.SetWatchData(ctx, &data)
	}
	return data, nil
}
