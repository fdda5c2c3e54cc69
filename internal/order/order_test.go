package order

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/models"
)

type stubWatch struct {
	data map[string]models.UserItemData
	err  error
}

func (s stubWatch) WatchData(_ context.Context, userID, itemID string) (models.UserItemData, error) {
	if s.err != nil {
		return models.UserItemData{}, s.err
	}
	return s.data[userID+"/"+itemID], nil
}

func testContext() *Context {
	return &Context{Logger: zerolog.Nop()}
}

func ids(items []models.MediaItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]models.OrderEntry{
		{Field: "Name"},
		{Field: "ProductionYear", Descending: true},
	})
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if len(spec) != 2 || spec[0].Field != FieldName || !spec[1].Descending {
		t.Fatalf("unexpected spec: %+v", spec)
	}

	if _, err := ParseSpec([]models.OrderEntry{{Field: "Bogus"}}); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if _, err := ParseSpec([]models.OrderEntry{{Field: "Random", Descending: true}}); err == nil {
		t.Fatalf("expected error for direction on random")
	}
	if _, err := ParseSpec([]models.OrderEntry{{Field: "None", Descending: true}}); err == nil {
		t.Fatalf("expected error for direction on none")
	}
}

func TestApply_SingleKeyAscendingAndDescending(t *testing.T) {
	items := []models.MediaItem{
		{ID: "b", Name: "Beta", ProductionYear: 2001},
		{ID: "a", Name: "Alpha", ProductionYear: 2003},
		{ID: "c", Name: "Gamma", ProductionYear: 1999},
	}

	asc := Apply(context.Background(), items, Spec{{Field: FieldName}}, testContext())
	if got := ids(asc); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("ascending = %v", got)
	}

	desc := Apply(context.Background(), items, Spec{{Field: FieldProductionYear, Descending: true}}, testContext())
	if got := ids(desc); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("descending by year = %v", got)
	}
}

func TestApply_AgreesWithSortKeyForEveryField(t *testing.T) {
	now := time.Now()
	items := []models.MediaItem{
		{ID: "1", Kind: models.KindEpisode, Name: "Zeta", SortName: "zeta", ProductionYear: 2001, PremiereDate: now.Add(-48 * time.Hour), DateCreated: now.Add(-time.Hour), RunTime: 42 * time.Minute, CommunityRating: 7.1, CriticRating: 60, SeriesID: "s1", SeasonNumber: 2, EpisodeNumber: 3, Album: "B", DiscNumber: 1, TrackNumber: 9},
		{ID: "2", Kind: models.KindEpisode, Name: "Alpha", ProductionYear: 1995, PremiereDate: now.Add(-24 * time.Hour), RunTime: 95 * time.Minute, CommunityRating: 8.4, CriticRating: 91, SeriesID: "s2", SeasonNumber: 1, EpisodeNumber: 1, Album: "A", DiscNumber: 2, TrackNumber: 1},
		{ID: "3", Kind: models.KindMovie, Name: "Midway", ProductionYear: 2001, RunTime: 42 * time.Minute, CommunityRating: 7.1, Album: "B", DiscNumber: 1, TrackNumber: 2},
		{ID: "4", Kind: models.KindSeries, Name: "Alpha"},
	}

	octx := testContext()
	octx.User = &models.User{ID: "u1"}
	octx.Watch = stubWatch{data: map[string]models.UserItemData{
		"u1/1": {PlayCount: 4, LastPlayed: now.Add(-time.Hour)},
		"u1/2": {PlayCount: 1, LastPlayed: now.Add(-30 * time.Hour)},
	}}
	octx.Scores = map[string]float64{"1": 3, "2": 9}
	octx.SeriesNames = map[string]string{"s1": "Beta Show", "s2": "Alpha Show"}
	octx.Seed = 12345

	for field := range definitions {
		if field == FieldNone {
			continue
		}
		k := Key{Field: field}

		bulk := Apply(context.Background(), append([]models.MediaItem(nil), items...), Spec{k}, octx)

		single := append([]models.MediaItem(nil), items...)
		sort.SliceStable(single, func(a, b int) bool {
			ka := SortKey(context.Background(), single[a], k, octx)
			kb := SortKey(context.Background(), single[b], k, octx)
			return ka.Compare(kb) < 0
		})

		if !reflect.DeepEqual(ids(bulk), ids(single)) {
			t.Fatalf("field %s: bulk %v != single-key %v", field, ids(bulk), ids(single))
		}
	}
}

func TestApply_CascadeBreaksTiesWithSecondKey(t *testing.T) {
	items := []models.MediaItem{
		{ID: "a", Name: "Same", SortName: "same", ProductionYear: 2001, CommunityRating: 6},
		{ID: "b", Name: "Same", SortName: "same", ProductionYear: 2001, CommunityRating: 9},
		{ID: "c", Name: "Same", SortName: "same", ProductionYear: 2001, CommunityRating: 7},
	}

	spec := Spec{
		{Field: FieldName},
		{Field: FieldCommunityRating, Descending: true},
	}
	out := Apply(context.Background(), items, spec, testContext())
	if got := ids(out); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("cascade order = %v", got)
	}
}

func TestApply_StableOnFullTie(t *testing.T) {
	items := []models.MediaItem{
		{ID: "x", Name: "Same", ProductionYear: 2001},
		{ID: "y", Name: "Same", ProductionYear: 2001},
		{ID: "z", Name: "Same", ProductionYear: 2001},
	}
	out := Apply(context.Background(), items, Spec{{Field: FieldName}}, testContext())
	if got := ids(out); !reflect.DeepEqual(got, []string{"x", "y", "z"}) {
		t.Fatalf("full tie must keep input order, got %v", got)
	}
}

func TestApply_RandomConsistentWithinRun(t *testing.T) {
	items := make([]models.MediaItem, 20)
	for i := range items {
		items[i] = models.MediaItem{ID: string(rune('a' + i))}
	}

	octx := testContext()
	octx.Seed = 42

	first := Apply(context.Background(), append([]models.MediaItem(nil), items...), Spec{{Field: FieldRandom}}, octx)
	second := Apply(context.Background(), append([]models.MediaItem(nil), items...), Spec{{Field: FieldRandom}}, octx)
	if !reflect.DeepEqual(ids(first), ids(second)) {
		t.Fatalf("same seed must shuffle identically")
	}

	other := testContext()
	other.Seed = rand.Int63()
	reshuffled := Apply(context.Background(), append([]models.MediaItem(nil), items...), Spec{{Field: FieldRandom}}, other)
	if reflect.DeepEqual(ids(first), ids(reshuffled)) {
		t.Fatalf("different seeds should shuffle differently")
	}
}

func TestApply_UserScopedWithoutUserSkipsKey(t *testing.T) {
	items := []models.MediaItem{
		{ID: "b", Name: "Beta"},
		{ID: "a", Name: "Alpha"},
	}

	out := Apply(context.Background(), items, Spec{{Field: FieldPlayCount, Descending: true}}, testContext())
	if got := ids(out); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("user-scoped order without user must leave items unsorted, got %v", got)
	}
}

func TestApply_WatchErrorSortsAsUnplayed(t *testing.T) {
	items := []models.MediaItem{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: "Beta"},
	}

	octx := testContext()
	octx.User = &models.User{ID: "u1"}
	octx.Watch = stubWatch{err: errors.New("backend down")}

	out := Apply(context.Background(), items, Spec{{Field: FieldPlayCount, Descending: true}}, octx)
	// Every lookup failed, every count is zero, the name tiebreak decides.
	if got := ids(out); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected tiebreak order, got %v", got)
	}
}

func TestApply_MissingDatesSortFirst(t *testing.T) {
	items := []models.MediaItem{
		{ID: "dated", Name: "Dated", PremiereDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "undated", Name: "Undated"},
	}
	out := Apply(context.Background(), items, Spec{{Field: FieldPremiereDate}}, testContext())
	if got := ids(out); !reflect.DeepEqual(got, []string{"undated", "dated"}) {
		t.Fatalf("zero dates must sort lowest, got %v", got)
	}
}

func TestApply_SimilarityMissingScoreSortsLast(t *testing.T) {
	items := []models.MediaItem{
		{ID: "unscored", Name: "Unscored"},
		{ID: "scored", Name: "Scored"},
	}
	octx := testContext()
	octx.Scores = map[string]float64{"scored": 1.5}

	out := Apply(context.Background(), items, Spec{{Field: FieldSimilarity, Descending: true}}, octx)
	if got := ids(out); !reflect.DeepEqual(got, []string{"scored", "unscored"}) {
		t.Fatalf("missing scores must sort last on descending, got %v", got)
	}
}

func TestApply_EpisodeOrderSeasonThenEpisode(t *testing.T) {
	items := []models.MediaItem{
		{ID: "s2e1", SeasonNumber: 2, EpisodeNumber: 1},
		{ID: "s1e2", SeasonNumber: 1, EpisodeNumber: 2},
		{ID: "s1e1", SeasonNumber: 1, EpisodeNumber: 1},
	}
	out := Apply(context.Background(), items, Spec{{Field: FieldEpisode}}, testContext())
	if got := ids(out); !reflect.DeepEqual(got, []string{"s1e1", "s1e2", "s2e1"}) {
		t.Fatalf("episode order = %v", got)
	}
}

func TestApply_AlbumTrackOrder(t *testing.T) {
	items := []models.MediaItem{
		{ID: "b-d1-t1", Album: "Beta", DiscNumber: 1, TrackNumber: 1},
		{ID: "a-d2-t1", Album: "Alpha", DiscNumber: 2, TrackNumber: 1},
		{ID: "a-d1-t2", Album: "Alpha", DiscNumber: 1, TrackNumber: 2},
		{ID: "a-d1-t1", Album: "Alpha", DiscNumber: 1, TrackNumber: 1},
	}
	out := Apply(context.Background(), items, Spec{{Field: FieldAlbumTrack}}, testContext())
	want := []string{"a-d1-t1", "a-d1-t2", "a-d2-t1", "b-d1-t1"}
	if got := ids(out); !reflect.DeepEqual(got, want) {
		t.Fatalf("album order = %v, want %v", got, want)
	}
}

func TestValueCompare(t *testing.T) {
	if c := value(numPart(1)).Compare(value(numPart(2))); c != -1 {
		t.Fatalf("1 vs 2 = %d", c)
	}
	if c := value(strPart("Alpha")).Compare(value(strPart("alpha"))); c != 0 {
		t.Fatalf("case-insensitive compare = %d", c)
	}
	if c := value(numPart(1), strPart("b")).Compare(value(numPart(1), strPart("a"))); c != 1 {
		t.Fatalf("tiebreak compare = %d", c)
	}
	if c := value(numPart(1)).Compare(value(numPart(1), strPart("a"))); c != -1 {
		t.Fatalf("shorter value must sort first, got %d", c)
	}
}
