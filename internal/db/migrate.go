/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/skald/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.User{},
		&models.MediaItem{},
		&models.UserItemData{},
		&models.Collection{},
		&models.SmartPlaylist{},
		&models.RefreshRun{},
		&models.AuditEntry{},
	); err != nil {
		return err
	}

	if err := normalizeLegacyOrderFields(database); err != nil {
		return err
	}

	return nil
}

// normalizeLegacyOrderFields maps order field names from older rule documents
// onto their current spellings.
func normalizeLegacyOrderFields(database *gorm.DB) error {
	renames := map[string]string{
		"SortName":    "Name",
		"ReleaseDate": "PremiereDate",
	}
	for old, now := range renames {
		if err := database.Exec(
			"UPDATE smart_playlists SET order_document = REPLACE(order_document, ?, ?)",
			fmt.Sprintf("%q", old), fmt.Sprintf("%q", now),
		).Error; err != nil {
			return fmt.Errorf("normalize legacy order field %s: %w", old, err)
		}
	}
	return nil
}
