package rules

import (
	"reflect"
	"testing"

	"github.com/friendsincode/skald/internal/order"
)

func TestAnalyze_FieldFamilies(t *testing.T) {
	rs := RuleSet{Groups: []LogicGroup{{Expressions: []Expression{
		{Field: FieldPeople, Operator: OpContains, Value: "someone"},
		{Field: FieldCollection, Operator: OpEqual, Value: "Favorites"},
		{Field: FieldSeriesName, Operator: OpContains, Value: "expanse"},
		{Field: FieldAudioLanguage, Operator: OpEqual, Value: "eng"},
		{Field: FieldSimilarTo, Operator: OpEqual, Value: "ref"},
	}}}}

	req := Analyze(rs, nil)

	if !req.People || !req.Collections || !req.SeriesName || !req.MediaStreams || !req.Similarity {
		t.Fatalf("expected all referenced families set: %+v", req)
	}
	if req.NextUnplayed || req.InheritedMeta {
		t.Fatalf("unreferenced families must stay clear: %+v", req)
	}
	if !req.AnyExpensive() {
		t.Fatalf("expected AnyExpensive")
	}
}

func TestAnalyze_CheapRulesNeedNothing(t *testing.T) {
	rs := RuleSet{Groups: []LogicGroup{{Expressions: []Expression{
		{Field: FieldName, Operator: OpContains, Value: "dune"},
		{Field: FieldProductionYear, Operator: OpGreaterThan, Value: "2000"},
	}}}}

	req := Analyze(rs, nil)
	if req.AnyExpensive() {
		t.Fatalf("cheap-only rules must not require expensive extraction: %+v", req)
	}
}

func TestAnalyze_OrderSpecContributesRequirements(t *testing.T) {
	spec := order.Spec{
		{Field: order.FieldSeriesName},
		{Field: order.FieldSimilarity},
	}

	req := Analyze(RuleSet{}, spec)
	if !req.SeriesName {
		t.Fatalf("series name order must require series names")
	}
	if !req.Similarity {
		t.Fatalf("similarity order must require similarity scores")
	}
}

func TestAnalyze_NextUnplayedValueControlsUnwatchedSeries(t *testing.T) {
	rs := RuleSet{Groups: []LogicGroup{{Expressions: []Expression{
		{Field: FieldNextUnplayed, Operator: OpEqual, Value: "True"},
	}}}}
	req := Analyze(rs, nil)
	if !req.NextUnplayed || !req.IncludeUnwatchedSeries {
		t.Fatalf("expected NextUnplayed with unwatched series: %+v", req)
	}

	rs.Groups[0].Expressions[0].Value = "false"
	req = Analyze(rs, nil)
	if !req.NextUnplayed || req.IncludeUnwatchedSeries {
		t.Fatalf("false value must not include unwatched series: %+v", req)
	}
}

func TestAnalyze_CollectsReferencedUsersSorted(t *testing.T) {
	rs := RuleSet{Groups: []LogicGroup{
		{Expressions: []Expression{
			{Field: FieldIsPlayed, Operator: OpEqual, Value: "true", UserID: "zoe"},
			{Field: FieldIsFavorite, Operator: OpEqual, Value: "true", UserID: "amos"},
		}},
		{Expressions: []Expression{
			{Field: FieldPlayCount, Operator: OpGreaterThan, Value: "3", UserID: "zoe"},
		}},
	}}

	req := Analyze(rs, nil)
	if want := []string{"amos", "zoe"}; !reflect.DeepEqual(req.UserIDs, want) {
		t.Fatalf("UserIDs = %v, want %v", req.UserIDs, want)
	}
}

func TestCheapOnly_ClearsExpensiveFamiliesOnly(t *testing.T) {
	req := FieldRequirements{
		People:                 true,
		Collections:            true,
		Similarity:             true,
		IncludeUnwatchedSeries: true,
		UserIDs:                []string{"u1"},
	}

	cheap := req.CheapOnly()
	if cheap.AnyExpensive() {
		t.Fatalf("CheapOnly must clear expensive families: %+v", cheap)
	}
	if !cheap.IncludeUnwatchedSeries || len(cheap.UserIDs) != 1 {
		t.Fatalf("CheapOnly must keep derived values: %+v", cheap)
	}
}
