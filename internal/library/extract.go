/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"fmt"

	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/rules"
)

// Extract builds the evaluation operand for one item. Cheap projections come
// straight off the row; expensive families are resolved only when the
// requirements ask for them, consulting the run context's caches first.
func (s *Service) Extract(ctx context.Context, item models.MediaItem, reqs rules.FieldRequirements, rc *rules.RefreshContext) (*rules.Operand, error) {
	op := &rules.Operand{
		ID:   item.ID,
		Kind: item.Kind,

		Name:            item.Name,
		SortName:        item.SortName,
		Overview:        item.Overview,
		Path:            item.Path,
		ProductionYear:  item.ProductionYear,
		PremiereDate:    item.PremiereDate,
		DateCreated:     item.DateCreated,
		RuntimeMinutes:  item.RunTime.Minutes(),
		CommunityRating: item.CommunityRating,
		CriticRating:    item.CriticRating,
		ParentalRating:  item.ParentalRating,

		Genres:  item.Genres,
		Studios: item.Studios,
		Tags:    item.Tags,

		Album:       item.Album,
		AlbumArtist: item.AlbumArtist,
		Artist:      item.Artist,
		DiscNumber:  item.DiscNumber,
		TrackNumber: item.TrackNumber,

		SeriesID:      item.SeriesID,
		SeasonNumber:  item.SeasonNumber,
		EpisodeNumber: item.EpisodeNumber,
	}

	if reqs.People {
		op.People = item.People
	}

	if reqs.MediaStreams {
		op.AudioLanguages = item.AudioLanguages
		op.VideoCodecs = item.VideoCodecs
		op.AudioChannels = item.AudioChannels
		op.Resolution = item.Resolution
		if len(item.AudioLanguages) > 0 {
			op.DefaultAudioLanguage = item.AudioLanguages[0]
		}
	}

	if reqs.SeriesName || reqs.InheritedMeta {
		if err := s.resolveSeries(ctx, item, reqs, op, rc); err != nil {
			return nil, err
		}
	}

	if reqs.Collections {
		names, err := s.collectionsOf(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		op.Collections = names
	}

	if reqs.NextUnplayed {
		next, err := s.nextUnplayed(ctx, item, rc)
		if err != nil {
			return nil, err
		}
		op.NextUnplayed = next
	}

	if err := s.resolveWatchData(ctx, item.ID, reqs, op, rc); err != nil {
		return nil, err
	}

	return op, nil
}

// resolveSeries fills SeriesName and, for episodes, merges the parent
// series' descriptive metadata into the operand.
func (s *Service) resolveSeries(ctx context.Context, item models.MediaItem, reqs rules.FieldRequirements, op *rules.Operand, rc *rules.RefreshContext) error {
	if item.Kind == models.KindSeries {
		op.SeriesName = item.Name
		return nil
	}
	if item.SeriesID == "" {
		return nil
	}

	if name, ok := rc.SeriesName(item.SeriesID); ok {
		op.SeriesName = name
		if !reqs.InheritedMeta {
			return nil
		}
	}

	series, err := s.Item(ctx, item.SeriesID)
	if err != nil {
		return err
	}
	if series == nil {
		return nil
	}

	op.SeriesName = series.Name
	rc.SetSeriesName(item.SeriesID, series.Name)

	if reqs.InheritedMeta {
		op.Genres = mergeValues(op.Genres, series.Genres)
		op.Tags = mergeValues(op.Tags, series.Tags)
		op.Studios = mergeValues(op.Studios, series.Studios)
	}
	return nil
}

// nextUnplayed reports whether the item is the default user's next episode
// to watch. For a series it reports whether any episode is still unplayed,
// which lets unwatched series survive NextUnplayed rules.
func (s *Service) nextUnplayed(ctx context.Context, item models.MediaItem, rc *rules.RefreshContext) (bool, error) {
	userID := rc.DefaultUserID()
	if userID == "" {
		return false, nil
	}

	seriesID := item.SeriesID
	if item.Kind == models.KindSeries {
		seriesID = item.ID
	}
	if seriesID == "" {
		return false, nil
	}

	episodes, err := s.EpisodesOfSeries(ctx, seriesID)
	if err != nil {
		return false, err
	}

	for _, ep := range episodes {
		data, ok := rc.WatchData(userID, ep.ID)
		if !ok {
			data, err = s.WatchData(ctx, userID, ep.ID)
			if err != nil {
				return false, err
			}
			rc.SetWatchData(userID, ep.ID, data)
		}
		if data.Played {
			continue
		}
		if item.Kind == models.KindSeries {
			return true, nil
		}
		return ep.ID == item.ID, nil
	}
	return false, nil
}

// resolveWatchData populates UserData for the default user and every user
// the rule set references.
func (s *Service) resolveWatchData(ctx context.Context, itemID string, reqs rules.FieldRequirements, op *rules.Operand, rc *rules.RefreshContext) error {
	userIDs := reqs.UserIDs
	if def := rc.DefaultUserID(); def != "" {
		userIDs = append([]string{def}, userIDs...)
	}
	if len(userIDs) == 0 {
		return nil
	}

	op.UserData = make(map[string]rules.UserData, len(userIDs))
	for _, userID := range userIDs {
		if _, done := op.UserData[userID]; done {
			continue
		}

		data, ok := rc.WatchData(userID, itemID)
		if !ok {
			var err error
			data, err = s.WatchData(ctx, userID, itemID)
			if err != nil {
				return fmt.Errorf("watch data for %s: %w", userID, err)
			}
			rc.SetWatchData(userID, itemID, data)
		}

		op.UserData[userID] = rules.UserData{
			Played:     data.Played,
			Favorite:   data.Favorite,
			PlayCount:  data.PlayCount,
			LastPlayed: data.LastPlayed,
		}
	}
	return nil
}

func mergeValues(own, inherited []string) []string {
	seen := make(map[string]struct{}, len(own))
	for _, v := range own {
		seen[v] = struct{}{}
	}
	out := own
	for _, v := range inherited {
		if _, ok := seen[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
