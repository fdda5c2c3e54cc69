/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"time"

	"github.com/friendsincode/skald/internal/models"
)

// Operand is the per-item projection predicates evaluate against. Cheap
// fields are always populated; expensive ones only when the run's field
// requirements ask for them. Built fresh per item per phase and never
// mutated afterwards.
type Operand struct {
	ID   string
	Kind models.MediaKind

	Name            string
	SortName        string
	Overview        string
	Path            string
	ProductionYear  int
	PremiereDate    time.Time
	DateCreated     time.Time
	RuntimeMinutes  float64
	CommunityRating float64
	CriticRating    float64
	ParentalRating  string

	Genres  []string
	Studios []string
	Tags    []string

	Album       string
	AlbumArtist string
	Artist      string
	DiscNumber  int
	TrackNumber int

	SeriesID      string
	SeasonNumber  int
	EpisodeNumber int

	// Expensive projections.
	SeriesName           string
	People               []string
	Collections          []string
	NextUnplayed         bool
	AudioLanguages       []string
	DefaultAudioLanguage string
	VideoCodecs          []string
	AudioChannels        int
	Resolution           string

	// Watch state keyed by user id, for the default user plus every user an
	// expression references.
	UserData map[string]UserData

	// InheritsCollections marks an episode expanded from a matched series:
	// collection-membership expressions its series already satisfied are not
	// re-evaluated against it.
	InheritsCollections bool
}

// UserData is one user's watch state as seen by predicates.
type UserData struct {
	Played     bool
	Favorite   bool
	PlayCount  int
	LastPlayed time.Time
}

// FieldRequirements lists the expensive field families a run must extract,
// plus values derived from the rule set. Produced once per run by Analyze.
type FieldRequirements struct {
	People        bool
	Collections   bool
	NextUnplayed  bool
	SeriesName    bool
	InheritedMeta bool
	Similarity    bool
	MediaStreams  bool

	// IncludeUnwatchedSeries is set when a NextUnplayed expression asks for
	// unwatched series content.
	IncludeUnwatchedSeries bool

	// UserIDs are the distinct users referenced by expression modifiers,
	// beyond the run's default user. Every one must resolve before a run
	// proceeds.
	UserIDs []string
}

// AnyExpensive reports whether any expensive family must be extracted.
func (r FieldRequirements) AnyExpensive() bool {
	return r.People || r.Collections || r.NextUnplayed || r.SeriesName ||
		r.InheritedMeta || r.Similarity || r.MediaStreams
}

// CheapOnly returns a copy with every expensive family cleared, for Phase 1
// extraction.
func (r FieldRequirements) CheapOnly() FieldRequirements {
	return FieldRequirements{
		IncludeUnwatchedSeries: r.IncludeUnwatchedSeries,
		UserIDs:                r.UserIDs,
	}
}
