/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// MediaKind enumerates catalog item types.
type MediaKind string

const (
	KindMovie      MediaKind = "movie"
	KindSeries     MediaKind = "series"
	KindEpisode    MediaKind = "episode"
	KindAudio      MediaKind = "audio"
	KindMusicAlbum MediaKind = "music_album"
	KindVideo      MediaKind = "video"
)

// User represents a media server account whose watch state can scope rules
// and sort orders.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Enabled   bool   `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MediaItem is a catalog entry synced from the media server library.
type MediaItem struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	LibraryID  string    `gorm:"type:uuid;index"`
	Kind       MediaKind `gorm:"type:varchar(16);index"`
	Name       string    `gorm:"index"`
	SortName   string
	Overview   string `gorm:"type:text"`
	Path       string

	ProductionYear  int
	PremiereDate    time.Time
	DateCreated     time.Time
	RunTime         time.Duration
	CommunityRating float64
	CriticRating    float64
	ParentalRating  string `gorm:"type:varchar(16)"`

	Genres  []string `gorm:"type:jsonb;serializer:json"`
	Studios []string `gorm:"type:jsonb;serializer:json"`
	Tags    []string `gorm:"type:jsonb;serializer:json"`
	People  []string `gorm:"type:jsonb;serializer:json"`

	// Episode linkage
	SeriesID      string `gorm:"type:uuid;index"`
	SeasonNumber  int
	EpisodeNumber int

	// Audio linkage
	Album       string `gorm:"index"`
	AlbumArtist string
	Artist      string
	DiscNumber  int
	TrackNumber int

	// Technical stream summaries
	AudioLanguages []string `gorm:"type:jsonb;serializer:json"`
	VideoCodecs    []string `gorm:"type:jsonb;serializer:json"`
	AudioChannels  int
	Resolution     string `gorm:"type:varchar(16)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserItemData captures one user's watch state for one item.
type UserItemData struct {
	UserID           string `gorm:"type:uuid;primaryKey"`
	ItemID           string `gorm:"type:uuid;primaryKey"`
	Played           bool
	Favorite         bool
	PlayCount        int
	LastPlayed       time.Time
	PlaybackPosition time.Duration
	UpdatedAt        time.Time
}

// Collection is a named set of catalog items.
type Collection struct {
	ID        string   `gorm:"type:uuid;primaryKey"`
	Name      string   `gorm:"uniqueIndex"`
	ItemIDs   []string `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SmartPlaylist is a persisted rule-driven playlist definition. Members is
// rewritten wholesale by every successful refresh.
type SmartPlaylist struct {
	ID          string      `gorm:"type:uuid;primaryKey"`
	Name        string      `gorm:"index"`
	OwnerUserID string      `gorm:"type:uuid;index"`
	MediaKinds  []MediaKind `gorm:"type:jsonb;serializer:json"`

	RuleDocument  map[string]any `gorm:"type:jsonb;serializer:json"`
	OrderDocument []OrderEntry   `gorm:"type:jsonb;serializer:json"`

	MaxItems       int
	MaxPlayMinutes int

	Members []string `gorm:"type:jsonb;serializer:json"`
	Enabled bool     `gorm:"default:true;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderEntry is one (field, direction) pair of a playlist's order spec as
// persisted. Directionless orders (random, none) leave Descending false and
// it is ignored.
type OrderEntry struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// RunStatus tracks refresh run lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RefreshRun records one evaluation of a smart playlist.
type RefreshRun struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	PlaylistID string    `gorm:"type:uuid;index"`
	Status     RunStatus `gorm:"type:varchar(16)"`
	Candidates int
	Matched    int
	Kept       int
	Error      string `gorm:"type:text"`
	StartedAt  time.Time
	FinishedAt time.Time
}

// AuditEntry records one API mutation for later review.
type AuditEntry struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Actor     string    `gorm:"type:uuid;index"`
	Action    string    `gorm:"type:varchar(32);index"`
	TargetID  string    `gorm:"type:uuid;index"`
	Detail    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

// HasKind reports whether the playlist's media selection includes the kind.
func (p SmartPlaylist) HasKind(kind MediaKind) bool {
	for _, k := range p.MediaKinds {
		if k == kind {
			return true
		}
	}
	return false
}
