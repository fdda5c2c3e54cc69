package library

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/rules"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(&models.User{}, &models.MediaItem{}, &models.UserItemData{}, &models.Collection{})
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(db, nil, zerolog.Nop())
}

func mustCreate(t *testing.T, svc *Service, value any) {
	t.Helper()
	if err := svc.db.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

func seedSeries(t *testing.T, svc *Service) {
	t.Helper()
	mustCreate(t, svc, &models.MediaItem{
		ID: "ser1", Kind: models.KindSeries, Name: "Deep Space",
		Genres: []string{"Sci-Fi"}, Tags: []string{"space"}, Studios: []string{"Orbit"},
	})
	mustCreate(t, svc, &models.MediaItem{
		ID: "ep1", Kind: models.KindEpisode, Name: "Pilot", SeriesID: "ser1",
		SeasonNumber: 1, EpisodeNumber: 1, Genres: []string{"Drama"},
	})
	mustCreate(t, svc, &models.MediaItem{
		ID: "ep2", Kind: models.KindEpisode, Name: "Arrival", SeriesID: "ser1",
		SeasonNumber: 1, EpisodeNumber: 2,
	})
}

func TestCandidates_FiltersByKind(t *testing.T) {
	svc := newTestService(t)
	seedSeries(t, svc)
	mustCreate(t, svc, &models.MediaItem{ID: "mov1", Kind: models.KindMovie, Name: "Solaris"})

	ctx := context.Background()

	episodes, err := svc.Candidates(ctx, []models.MediaKind{models.KindEpisode})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("episodes = %d, want 2", len(episodes))
	}

	all, err := svc.Candidates(ctx, nil)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("all = %d, want 4", len(all))
	}
}

func TestEpisodesOfSeries_Ordered(t *testing.T) {
	svc := newTestService(t)
	seedSeries(t, svc)

	episodes, err := svc.EpisodesOfSeries(context.Background(), "ser1")
	if err != nil {
		t.Fatalf("EpisodesOfSeries: %v", err)
	}
	if len(episodes) != 2 || episodes[0].ID != "ep1" || episodes[1].ID != "ep2" {
		t.Fatalf("episodes = %+v", episodes)
	}
}

func TestCollectionMembers(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, &models.Collection{ID: "c1", Name: "Favorites", ItemIDs: []string{"a", "b"}})

	ctx := context.Background()

	members, err := svc.CollectionMembers(ctx, "Favorites")
	if err != nil {
		t.Fatalf("CollectionMembers: %v", err)
	}
	if _, ok := members["a"]; !ok || len(members) != 2 {
		t.Fatalf("members = %v", members)
	}

	unknown, err := svc.CollectionMembers(ctx, "Nope")
	if err != nil {
		t.Fatalf("CollectionMembers: %v", err)
	}
	if len(unknown) != 0 {
		t.Fatalf("unknown collection members = %v", unknown)
	}
}

func TestResolveUser_MissingIsNil(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, &models.User{ID: "u1", Name: "alice"})

	ctx := context.Background()

	user, err := svc.ResolveUser(ctx, "u1")
	if err != nil || user == nil || user.ID != "u1" {
		t.Fatalf("ResolveUser(u1) = %+v, %v", user, err)
	}

	missing, err := svc.ResolveUser(ctx, "nope")
	if err != nil {
		t.Fatalf("ResolveUser(nope): %v", err)
	}
	if missing != nil {
		t.Fatalf("missing user = %+v, want nil", missing)
	}
}

func TestWatchData_MissingRowIsZero(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, &models.UserItemData{
		UserID: "u1", ItemID: "i1", Played: true, PlayCount: 3,
		LastPlayed: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})

	ctx := context.Background()

	data, err := svc.WatchData(ctx, "u1", "i1")
	if err != nil || !data.Played || data.PlayCount != 3 {
		t.Fatalf("WatchData = %+v, %v", data, err)
	}

	zero, err := svc.WatchData(ctx, "u1", "never-seen")
	if err != nil {
		t.Fatalf("WatchData: %v", err)
	}
	if zero.Played || zero.UserID != "u1" || zero.ItemID != "never-seen" {
		t.Fatalf("zero watch data = %+v", zero)
	}
}

func TestExtract_InheritsSeriesMetadata(t *testing.T) {
	svc := newTestService(t)
	seedSeries(t, svc)

	rc := rules.NewRefreshContext("p1", nil, nil)
	reqs := rules.FieldRequirements{SeriesName: true, InheritedMeta: true}

	var ep models.MediaItem
	if err := svc.db.First(&ep, "id = ?", "ep1").Error; err != nil {
		t.Fatalf("load ep1: %v", err)
	}

	op, err := svc.Extract(context.Background(), ep, reqs, rc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if op.SeriesName != "Deep Space" {
		t.Errorf("SeriesName = %q", op.SeriesName)
	}
	wantGenres := map[string]bool{"Drama": true, "Sci-Fi": true}
	if len(op.Genres) != 2 || !wantGenres[op.Genres[0]] || !wantGenres[op.Genres[1]] {
		t.Errorf("Genres = %v, want own plus inherited", op.Genres)
	}
	if len(op.Tags) != 1 || op.Tags[0] != "space" {
		t.Errorf("Tags = %v", op.Tags)
	}

	if _, ok := rc.SeriesName("ser1"); !ok {
		t.Error("series name not cached in run context")
	}
}

func TestExtract_CollectionsAndWatchData(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, &models.MediaItem{ID: "mov1", Kind: models.KindMovie, Name: "Solaris"})
	mustCreate(t, svc, &models.Collection{ID: "c1", Name: "Classics", ItemIDs: []string{"mov1"}})
	mustCreate(t, svc, &models.User{ID: "u1", Name: "alice"})
	mustCreate(t, svc, &models.UserItemData{UserID: "u1", ItemID: "mov1", Played: true})

	rc := rules.NewRefreshContext("p1", &models.User{ID: "u1"}, nil)
	reqs := rules.FieldRequirements{Collections: true}

	var item models.MediaItem
	if err := svc.db.First(&item, "id = ?", "mov1").Error; err != nil {
		t.Fatalf("load mov1: %v", err)
	}

	op, err := svc.Extract(context.Background(), item, reqs, rc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(op.Collections) != 1 || op.Collections[0] != "Classics" {
		t.Errorf("Collections = %v", op.Collections)
	}
	if !op.UserData["u1"].Played {
		t.Errorf("UserData = %+v, want played for u1", op.UserData)
	}
}

func TestNextUnplayed(t *testing.T) {
	svc := newTestService(t)
	seedSeries(t, svc)
	mustCreate(t, svc, &models.User{ID: "u1", Name: "alice"})
	mustCreate(t, svc, &models.UserItemData{UserID: "u1", ItemID: "ep1", Played: true})

	rc := rules.NewRefreshContext("p1", &models.User{ID: "u1"}, nil)
	reqs := rules.FieldRequirements{NextUnplayed: true}
	ctx := context.Background()

	load := func(id string) models.MediaItem {
		var item models.MediaItem
		if err := svc.db.First(&item, "id = ?", id).Error; err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
		return item
	}

	// ep1 is played, so ep2 is the next episode to watch.
	op1, err := svc.Extract(ctx, load("ep1"), reqs, rc)
	if err != nil {
		t.Fatalf("Extract ep1: %v", err)
	}
	if op1.NextUnplayed {
		t.Error("ep1 should not be next unplayed")
	}

	op2, err := svc.Extract(ctx, load("ep2"), reqs, rc)
	if err != nil {
		t.Fatalf("Extract ep2: %v", err)
	}
	if !op2.NextUnplayed {
		t.Error("ep2 should be next unplayed")
	}

	// The series itself still has an unplayed episode.
	reqs.IncludeUnwatchedSeries = true
	ops, err := svc.Extract(ctx, load("ser1"), reqs, rc)
	if err != nil {
		t.Fatalf("Extract ser1: %v", err)
	}
	if !ops.NextUnplayed {
		t.Error("series with unplayed episodes should report next unplayed")
	}
}

func TestScore_WeightedOverlap(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, &models.MediaItem{
		ID: "ref", Kind: models.KindMovie, Name: "Reference",
		Genres: []string{"Sci-Fi", "Drama"}, Tags: []string{"space"}, People: []string{"Ada"},
	})

	ctx := context.Background()

	op := &rules.Operand{
		ID:     "cand",
		Genres: []string{"sci-fi"},
		Tags:   []string{"Space"},
		People: []string{"Grace"},
	}
	score, err := svc.Score(ctx, "ref", op)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// One genre at weight 3 plus one tag at weight 2.
	if score != 5 {
		t.Errorf("score = %v, want 5", score)
	}

	self, err := svc.Score(ctx, "ref", &rules.Operand{ID: "ref"})
	if err != nil || self != 0 {
		t.Errorf("self score = %v, %v, want 0", self, err)
	}

	missing, err := svc.Score(ctx, "nope", op)
	if err != nil || missing != 0 {
		t.Errorf("missing reference score = %v, %v, want 0", missing, err)
	}
}
