/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit records who changed what through the API.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/models"
)

// Actions recorded against playlists.
const (
	ActionPlaylistCreate  = "playlist.create"
	ActionPlaylistUpdate  = "playlist.update"
	ActionPlaylistDelete  = "playlist.delete"
	ActionPlaylistRefresh = "playlist.refresh"
)

// Service persists audit entries. Recording is best-effort: a failed write
// is logged but never fails the request that triggered it.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates an audit service.
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record stores one audit entry.
func (s *Service) Record(ctx context.Context, actor, action, targetID, detail string) {
	entry := models.AuditEntry{
		ID:        uuid.NewString(),
		Actor:     actor,
		Action:    action,
		TargetID:  targetID,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("record audit entry")
	}
}

// Recent returns the newest entries, optionally filtered by target.
func (s *Service) Recent(ctx context.Context, targetID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if targetID != "" {
		q = q.Where("target_id = ?", targetID)
	}
	var entries []models.AuditEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
