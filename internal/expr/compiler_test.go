package expr

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/rules"
)

func compile(t *testing.T, e rules.Expression) rules.Predicate {
	t.Helper()
	pred, err := NewCompiler(zerolog.Nop()).CompileExpression(e, "default-user")
	if err != nil {
		t.Fatalf("CompileExpression(%+v): %v", e, err)
	}
	return pred
}

func mustMatch(t *testing.T, pred rules.Predicate, op *rules.Operand, want bool) {
	t.Helper()
	got, err := pred(op)
	if err != nil {
		t.Fatalf("predicate: %v", err)
	}
	if got != want {
		t.Fatalf("predicate = %v, want %v", got, want)
	}
}

func TestCompile_StringOperators(t *testing.T) {
	op := &rules.Operand{Name: "The Fifth Element"}

	tests := []struct {
		operator rules.Operator
		value    string
		want     bool
	}{
		{rules.OpEqual, "the fifth element", true},
		{rules.OpEqual, "element", false},
		{rules.OpNotEqual, "element", true},
		{rules.OpContains, "Fifth", true},
		{rules.OpContains, "sixth", false},
		{rules.OpNotContains, "sixth", true},
		{rules.OpMatchRegex, `^The .+ Element$`, true},
		{rules.OpMatchRegex, `^Element`, false},
		{rules.OpIn, "alien, the fifth element, dune", true},
		{rules.OpIn, "alien, dune", false},
	}

	for _, tt := range tests {
		pred := compile(t, rules.Expression{Field: rules.FieldName, Operator: tt.operator, Value: tt.value})
		mustMatch(t, pred, op, tt.want)
	}
}

func TestCompile_ListOperators(t *testing.T) {
	op := &rules.Operand{Genres: []string{"Sci-Fi", "Action"}}

	tests := []struct {
		operator rules.Operator
		value    string
		want     bool
	}{
		{rules.OpEqual, "sci-fi", true},
		{rules.OpContains, "Action", true},
		{rules.OpEqual, "drama", false},
		{rules.OpNotEqual, "drama", true},
		{rules.OpNotContains, "action", false},
		{rules.OpMatchRegex, `(?i)sci`, true},
		{rules.OpIn, "drama, action", true},
		{rules.OpIn, "drama, comedy", false},
	}

	for _, tt := range tests {
		pred := compile(t, rules.Expression{Field: rules.FieldGenre, Operator: tt.operator, Value: tt.value})
		mustMatch(t, pred, op, tt.want)
	}
}

func TestCompile_NumberOperators(t *testing.T) {
	op := &rules.Operand{ProductionYear: 2001}

	tests := []struct {
		operator rules.Operator
		value    string
		want     bool
	}{
		{rules.OpEqual, "2001", true},
		{rules.OpNotEqual, "2001", false},
		{rules.OpGreaterThan, "2000", true},
		{rules.OpGreaterThanOrEqual, "2001", true},
		{rules.OpLessThan, "2001", false},
		{rules.OpLessThanOrEqual, "2001", true},
		{rules.OpIn, "1999, 2001, 2003", true},
		{rules.OpIn, "1999, 2003", false},
	}

	for _, tt := range tests {
		pred := compile(t, rules.Expression{Field: rules.FieldProductionYear, Operator: tt.operator, Value: tt.value})
		mustMatch(t, pred, op, tt.want)
	}
}

func TestCompile_TimeOperators(t *testing.T) {
	op := &rules.Operand{PremiereDate: time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)}

	tests := []struct {
		operator rules.Operator
		value    string
		want     bool
	}{
		{rules.OpEqual, "2010-06-15", true},
		{rules.OpGreaterThan, "2010-01-01", true},
		{rules.OpLessThan, "2010-01-01", false},
		{rules.OpGreaterThanOrEqual, "2010-06-15", true},
		{rules.OpLessThanOrEqual, "2010-06-15", true},
	}

	for _, tt := range tests {
		pred := compile(t, rules.Expression{Field: rules.FieldPremiereDate, Operator: tt.operator, Value: tt.value})
		mustMatch(t, pred, op, tt.want)
	}
}

func TestCompile_UserScopedFields(t *testing.T) {
	op := &rules.Operand{UserData: map[string]rules.UserData{
		"default-user": {Played: true, PlayCount: 7},
		"other-user":   {Played: false, Favorite: true},
	}}

	played := compile(t, rules.Expression{Field: rules.FieldIsPlayed, Operator: rules.OpEqual, Value: "true"})
	mustMatch(t, played, op, true)

	otherPlayed := compile(t, rules.Expression{Field: rules.FieldIsPlayed, Operator: rules.OpEqual, Value: "true", UserID: "other-user"})
	mustMatch(t, otherPlayed, op, false)

	otherFavorite := compile(t, rules.Expression{Field: rules.FieldIsFavorite, Operator: rules.OpEqual, Value: "true", UserID: "other-user"})
	mustMatch(t, otherFavorite, op, true)

	playCount := compile(t, rules.Expression{Field: rules.FieldPlayCount, Operator: rules.OpGreaterThan, Value: "5"})
	mustMatch(t, playCount, op, true)
}

func TestCompile_DefaultTrackOnlyAudioLanguage(t *testing.T) {
	op := &rules.Operand{
		AudioLanguages:       []string{"eng", "jpn"},
		DefaultAudioLanguage: "eng",
	}

	anyTrack := compile(t, rules.Expression{Field: rules.FieldAudioLanguage, Operator: rules.OpEqual, Value: "jpn"})
	mustMatch(t, anyTrack, op, true)

	defaultOnly := compile(t, rules.Expression{Field: rules.FieldAudioLanguage, Operator: rules.OpEqual, Value: "jpn", DefaultTrackOnly: true})
	mustMatch(t, defaultOnly, op, false)
}

func TestCompile_Errors(t *testing.T) {
	c := NewCompiler(zerolog.Nop())

	cases := []rules.Expression{
		{Field: "Bogus", Operator: rules.OpEqual, Value: "x"},
		{Field: rules.FieldSimilarTo, Operator: rules.OpEqual, Value: "ref"},
		{Field: rules.FieldProductionYear, Operator: rules.OpEqual, Value: "not-a-number"},
		{Field: rules.FieldPremiereDate, Operator: rules.OpEqual, Value: "not-a-date"},
		{Field: rules.FieldIsPlayed, Operator: rules.OpEqual, Value: "not-a-bool"},
		{Field: rules.FieldName, Operator: rules.OpMatchRegex, Value: "("},
		{Field: rules.FieldName, Operator: rules.OpGreaterThan, Value: "x"},
		{Field: rules.FieldIsPlayed, Operator: rules.OpContains, Value: "true"},
	}

	for _, e := range cases {
		if _, err := c.CompileExpression(e, "u1"); err == nil {
			t.Fatalf("expected error for %+v", e)
		}
	}
}
