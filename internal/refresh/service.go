/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package refresh drives smart playlist evaluation: the periodic refresh
// loop, on-demand refreshes, run bookkeeping, and member persistence.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/cache"
	"github.com/friendsincode/skald/internal/eventbus"
	"github.com/friendsincode/skald/internal/library"
	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/order"
	"github.com/friendsincode/skald/internal/rules"
	"github.com/friendsincode/skald/internal/telemetry"
)

// ErrRefreshInFlight is returned when a playlist is already being refreshed.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// ErrPlaylistNotFound is returned for unknown playlist ids.
var ErrPlaylistNotFound = errors.New("playlist not found")

// Service evaluates smart playlists and persists the results.
type Service struct {
	db       *gorm.DB
	engine   *rules.Engine
	library  *library.Service
	redis    *cache.Cache
	bus      *eventbus.Bus
	interval time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService wires the refresh service.
func NewService(db *gorm.DB, engine *rules.Engine, lib *library.Service, redis *cache.Cache, bus *eventbus.Bus, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Service{
		db:       db,
		engine:   engine,
		library:  lib,
		redis:    redis,
		bus:      bus,
		interval: interval,
		logger:   logger.With().Str("component", "refresh").Logger(),
		inflight: make(map[string]struct{}),
	}
}

// Run executes the periodic refresh loop until the context is cancelled.
// One full pass runs immediately at startup.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("refresh loop started")

	s.RefreshAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("refresh loop stopped")
			return
		case <-ticker.C:
			s.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every enabled playlist. Individual failures are
// logged and do not stop the pass.
func (s *Service) RefreshAll(ctx context.Context) {
	var lists []models.SmartPlaylist
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&lists).Error; err != nil {
		s.logger.Error().Err(err).Msg("list enabled playlists")
		return
	}

	for _, list := range lists {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RefreshPlaylist(ctx, list.ID); err != nil && !errors.Is(err, ErrRefreshInFlight) {
			s.logger.Error().Err(err).Str("playlist_id", list.ID).Msg("playlist refresh failed")
		}
	}
}

// RefreshPlaylist evaluates one playlist and replaces its members. At most
// one refresh per playlist runs at a time; concurrent callers get
// ErrRefreshInFlight.
func (s *Service) RefreshPlaylist(ctx context.Context, playlistID string) (*models.RefreshRun, error) {
	if !s.begin(playlistID) {
		return nil, ErrRefreshInFlight
	}
	defer s.end(playlistID)

	ctx, span := telemetry.StartSpan(ctx, "refresh.playlist")
	defer span.End()
	telemetry.AddSpanAttributes(ctx, attribute.String("playlist.id", playlistID))

	list, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	run := &models.RefreshRun{
		ID:         uuid.NewString(),
		PlaylistID: list.ID,
		Status:     models.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("create refresh run: %w", err)
	}

	members, candidates, err := s.evaluate(ctx, list)
	run.FinishedAt = time.Now().UTC()
	run.Candidates = candidates

	if err != nil {
		telemetry.RecordError(ctx, err)
		run.Status = models.RunFailed
		run.Error = err.Error()
		s.finishRun(ctx, run)
		telemetry.RefreshRunsTotal.WithLabelValues(string(models.RunFailed)).Inc()
		return run, err
	}

	if err := s.persistMembers(ctx, list.ID, members); err != nil {
		telemetry.RecordError(ctx, err)
		run.Status = models.RunFailed
		run.Error = err.Error()
		s.finishRun(ctx, run)
		telemetry.RefreshRunsTotal.WithLabelValues(string(models.RunFailed)).Inc()
		return run, err
	}

	run.Status = models.RunSucceeded
	run.Matched = len(members)
	run.Kept = len(members)
	s.finishRun(ctx, run)

	duration := run.FinishedAt.Sub(run.StartedAt)
	telemetry.RefreshRunsTotal.WithLabelValues(string(models.RunSucceeded)).Inc()
	telemetry.RefreshDuration.Observe(duration.Seconds())
	telemetry.RefreshMembers.Observe(float64(len(members)))

	if err := s.bus.Publish(eventbus.SubjectPlaylistRefreshed, eventbus.PlaylistRefreshed{
		PlaylistID: list.ID,
		RunID:      run.ID,
		Members:    len(members),
		Duration:   duration,
	}); err != nil {
		s.logger.Warn().Err(err).Str("playlist_id", list.ID).Msg("publish refresh event")
	}

	s.logger.Info().
		Str("playlist_id", list.ID).
		Int("candidates", candidates).
		Int("members", len(members)).
		Dur("duration", duration).
		Msg("playlist refreshed")

	return run, nil
}

// LatestRun returns the most recent refresh run for a playlist.
func (s *Service) LatestRun(ctx context.Context, playlistID string) (*models.RefreshRun, error) {
	var run models.RefreshRun
	err := s.db.WithContext(ctx).
		Where("playlist_id = ?", playlistID).
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return &run, nil
}

// evaluate runs the engine for one playlist and returns the ordered member
// ids plus the candidate count.
func (s *Service) evaluate(ctx context.Context, list *models.SmartPlaylist) ([]string, int, error) {
	rs, err := rules.ParseRuleSet(list.RuleDocument)
	if err != nil {
		return nil, 0, err
	}

	spec, err := order.ParseSpec(list.OrderDocument)
	if err != nil {
		return nil, 0, err
	}

	var user *models.User
	if list.OwnerUserID != "" {
		user, err = s.library.ResolveUser(ctx, list.OwnerUserID)
		if err != nil {
			return nil, 0, err
		}
		if user == nil {
			return nil, 0, fmt.Errorf("owner %s: %w", list.OwnerUserID, rules.ErrUserNotFound)
		}
	}

	candidates, err := s.library.Candidates(ctx, list.MediaKinds)
	if err != nil {
		return nil, 0, err
	}

	rc := rules.NewRefreshContext(list.ID, user, list.MediaKinds)
	rc.Progress = func(processed, total int) {
		s.logger.Debug().
			Str("playlist_id", list.ID).
			Int("processed", processed).
			Int("total", total).
			Msg("filter progress")
	}

	members, err := s.engine.FilterAndRank(ctx, candidates, rs, spec, list.MaxItems, list.MaxPlayMinutes, rc)
	if err != nil {
		return nil, len(candidates), err
	}
	return members, len(candidates), nil
}

// persistMembers replaces the playlist's member list in a single update, so
// readers never observe a partially refreshed playlist.
func (s *Service) persistMembers(ctx context.Context, playlistID string, members []string) error {
	if members == nil {
		members = []string{}
	}
	err := s.db.WithContext(ctx).
		Model(&models.SmartPlaylist{}).
		Where("id = ?", playlistID).
		Update("members", members).Error
	if err != nil {
		return fmt.Errorf("persist members: %w", err)
	}

	if s.redis != nil {
		_ = s.redis.InvalidatePlaylist(ctx, playlistID)
		_ = s.redis.SetMembers(ctx, playlistID, members)
	}
	return nil
}

func (s *Service) loadPlaylist(ctx context.Context, playlistID string) (*models.SmartPlaylist, error) {
	if s.redis != nil {
		if list, ok := s.redis.GetPlaylist(ctx, playlistID); ok {
			return list, nil
		}
	}

	var list models.SmartPlaylist
	err := s.db.WithContext(ctx).First(&list, "id = ?", playlistID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query playlist: %w", err)
	}

	if s.redis != nil {
		_ = s.redis.SetPlaylist(ctx, &list)
	}
	return &list, nil
}

func (s *Service) finishRun(ctx context.Context, run *models.RefreshRun) {
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("persist refresh run")
	}
}

func (s *Service) begin(playlistID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[playlistID]; busy {
		return false
	}
	s.inflight[playlistID] = struct{}{}
	return true
}

func (s *Service) end(playlistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, playlistID)
}
