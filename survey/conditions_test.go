package survey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kyudo-console/domain"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "engineering", Normalize("  ENGINEERING "))
	assert.Equal(t, "60", Normalize("６０"), "full-width digits are narrowed")
	assert.Equal(t, "abc", Normalize("ＡＢＣ"))
	assert.Equal(t, "", Normalize("   "))
}

func TestMatches(t *testing.T) {
	p := ProfileFields{
		DisplayName: "Tanaka Hanako",
		Generation:  "60",
		Department:  "Engineering Club",
		Gender:      "female",
	}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq exact", Condition{FieldGeneration, OpEq, "60"}, true},
		{"eq is case-insensitive", Condition{FieldGender, OpEq, "FEMALE"}, true},
		{"eq is not substring", Condition{FieldGeneration, OpEq, "6"}, false},
		{"eq full-width value", Condition{FieldGeneration, OpEq, "６０"}, true},
		{"eq generation list", Condition{FieldGeneration, OpEq, "58, 60"}, true},
		{"eq generation list miss", Condition{FieldGeneration, OpEq, "58,59"}, false},
		{"ilike substring", Condition{FieldDepartment, OpILike, "eng"}, true},
		{"ilike case-insensitive", Condition{FieldDisplayName, OpILike, "HANAKO"}, true},
		{"ilike miss", Condition{FieldDepartment, OpILike, "science"}, false},
		{"empty field never matches", Condition{FieldRyuha, OpILike, "heki"}, false},
		{"empty field never matches eq", Condition{FieldStudentNumber, OpEq, ""}, false},
		{"unknown op", Condition{FieldGeneration, Op("gt"), "59"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(p, tt.cond))
		})
	}
}

func TestMatchesAnyGroup_EmptyGroupsMatchEveryone(t *testing.T) {
	profiles := []ProfileFields{
		{},
		{DisplayName: "x"},
		{Generation: "59", Department: "science"},
	}
	for _, p := range profiles {
		assert.True(t, MatchesAnyGroup(p, nil))
		assert.True(t, MatchesAnyGroup(p, []TargetGroup{}))
	}
}

func TestMatchesAnyGroup_GroupWithoutConditionsMatches(t *testing.T) {
	assert.True(t, MatchesAnyGroup(ProfileFields{}, []TargetGroup{{ID: "g"}}))
}

func TestMatchesAnyGroup_DNF(t *testing.T) {
	// groups [{A, B}, {C}]
	a := Condition{FieldGeneration, OpEq, "60"}
	b := Condition{FieldGender, OpEq, "male"}
	c := Condition{FieldDepartment, OpILike, "eng"}
	groups := []TargetGroup{
		{ID: "g1", Conditions: []Condition{a, b}},
		{ID: "g2", Conditions: []Condition{c}},
	}

	assert.True(t, MatchesAnyGroup(ProfileFields{Generation: "60", Gender: "male"}, groups), "A and B")
	assert.True(t, MatchesAnyGroup(ProfileFields{Department: "Engineering"}, groups), "C alone")
	assert.False(t, MatchesAnyGroup(ProfileFields{Generation: "60", Gender: "female"}, groups), "A without B, no C")
}

func TestMatchesAnyGroup_Scenario(t *testing.T) {
	groups := []TargetGroup{
		{ID: "g1", Conditions: []Condition{{FieldGeneration, OpEq, "60"}}},
		{ID: "g2", Conditions: []Condition{{FieldDepartment, OpILike, "eng"}}},
	}

	assert.True(t, MatchesAnyGroup(ProfileFields{Generation: "60", Department: "science"}, groups))
	assert.True(t, MatchesAnyGroup(ProfileFields{Generation: "59", Department: "Engineering Club"}, groups))
	assert.False(t, MatchesAnyGroup(ProfileFields{Generation: "59", Department: "science"}, groups))
}

func TestResponseRate(t *testing.T) {
	assert.Equal(t, 0.0, ResponseRate(0, 0))
	assert.Equal(t, 0.0, ResponseRate(3, 0), "no eligible accounts means 0, not a division by zero")
	assert.Equal(t, 100.0, ResponseRate(4, 4))
	assert.Equal(t, 33.3, ResponseRate(1, 3))
	assert.Equal(t, 66.7, ResponseRate(2, 3))
	assert.Equal(t, 14.3, ResponseRate(1, 7))

	for eligible := 1; eligible <= 40; eligible++ {
		for responded := 0; responded <= eligible; responded++ {
			r := ResponseRate(responded, eligible)
			require.GreaterOrEqual(t, r, 0.0)
			require.LessOrEqual(t, r, 100.0)
		}
	}
}

func TestAvailabilityAt(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	assert.Equal(t, AvailabilityOpen, AvailabilityAt(Survey{}, now))
	assert.Equal(t, AvailabilityUpcoming, AvailabilityAt(Survey{OpensAt: &after}, now))
	assert.Equal(t, AvailabilityClosed, AvailabilityAt(Survey{ClosesAt: &before}, now))
	assert.Equal(t, AvailabilityOpen, AvailabilityAt(Survey{OpensAt: &before, ClosesAt: &after}, now))
	assert.Equal(t, AvailabilityOpen, AvailabilityAt(Survey{OpensAt: &now, ClosesAt: &now}, now), "bounds are inclusive")

	assert.True(t, CanAnswer(Survey{Status: StatusOpen}, AvailabilityOpen, true))
	assert.False(t, CanAnswer(Survey{Status: StatusOpen}, AvailabilityOpen, false))
	assert.False(t, CanAnswer(Survey{Status: StatusClosed}, AvailabilityOpen, true))
	assert.False(t, CanAnswer(Survey{Status: StatusOpen}, AvailabilityUpcoming, true))
}

func TestValidateAnswers(t *testing.T) {
	questions := []Question{
		{ID: "q1", Type: QuestionSingle, Options: []Option{{ID: "o1"}, {ID: "o2"}}},
		{ID: "q2", Type: QuestionMultiple, Options: []Option{{ID: "o3"}, {ID: "o4"}}},
	}

	t.Run("valid with duplicates collapsed", func(t *testing.T) {
		got, err := ValidateAnswers(questions, []SubmittedAnswer{
			{QuestionID: "q1", OptionIDs: []string{"o1", "o1"}},
			{QuestionID: "q2", OptionIDs: []string{"o3", "o4", "o3"}},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{"q1": {"o1"}, "q2": {"o3", "o4"}}, got)
	})

	tests := []struct {
		name    string
		answers []SubmittedAnswer
		want    error
	}{
		{"missing question", []SubmittedAnswer{{QuestionID: "q1", OptionIDs: []string{"o1"}}}, ErrIncomplete},
		{"empty selection", []SubmittedAnswer{
			{QuestionID: "q1", OptionIDs: []string{"o1"}},
			{QuestionID: "q2"},
		}, ErrIncomplete},
		{"single with two", []SubmittedAnswer{
			{QuestionID: "q1", OptionIDs: []string{"o1", "o2"}},
			{QuestionID: "q2", OptionIDs: []string{"o3"}},
		}, ErrSingleChoice},
		{"single with zero", []SubmittedAnswer{
			{QuestionID: "q1", OptionIDs: nil},
			{QuestionID: "q2", OptionIDs: []string{"o3"}},
		}, ErrIncomplete},
		{"foreign option", []SubmittedAnswer{
			{QuestionID: "q1", OptionIDs: []string{"o3"}},
			{QuestionID: "q2", OptionIDs: []string{"o3"}},
		}, ErrInvalidOption},
		{"unknown question", []SubmittedAnswer{
			{QuestionID: "q1", OptionIDs: []string{"o1"}},
			{QuestionID: "q2", OptionIDs: []string{"o3"}},
			{QuestionID: "q9", OptionIDs: []string{"o1"}},
		}, ErrInvalidQuestion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateAnswers(questions, tt.answers)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrInvalid)
		})
	}
}

func TestDraftValidate(t *testing.T) {
	valid := Draft{
		Title: "Summer camp",
		Questions: []DraftQuestion{
			{Prompt: "Attending?", Type: QuestionSingle, Options: []string{"Yes", "No"}},
		},
		TargetGroups: [][]Condition{{{FieldGeneration, OpEq, "60"}}},
	}
	require.NoError(t, valid.Validate())

	mutate := func(f func(d *Draft)) Draft {
		d := valid
		d.Questions = append([]DraftQuestion(nil), valid.Questions...)
		d.TargetGroups = append([][]Condition(nil), valid.TargetGroups...)
		f(&d)
		return d
	}
	opens := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	closes := opens.Add(-time.Hour)

	bad := map[string]Draft{
		"no title":         mutate(func(d *Draft) { d.Title = " " }),
		"no questions":     mutate(func(d *Draft) { d.Questions = nil }),
		"no options":       mutate(func(d *Draft) { d.Questions[0].Options = nil }),
		"duplicate labels": mutate(func(d *Draft) { d.Questions[0].Options = []string{"Yes", "ＹＥＳ"} }),
		"bad type":         mutate(func(d *Draft) { d.Questions[0].Type = "ranking" }),
		"empty group":      mutate(func(d *Draft) { d.TargetGroups = [][]Condition{{}} }),
		"bad field":        mutate(func(d *Draft) { d.TargetGroups = [][]Condition{{{"age", OpEq, "20"}}} }),
		"empty value":      mutate(func(d *Draft) { d.TargetGroups = [][]Condition{{{FieldGender, OpEq, " "}}} }),
		"closes first":     mutate(func(d *Draft) { d.OpensAt, d.ClosesAt = &opens, &closes }),
	}
	for name, d := range bad {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, d.Validate(), domain.ErrInvalid)
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusOpen))
	assert.True(t, CanTransition(StatusOpen, StatusClosed))
	assert.True(t, CanTransition(StatusClosed, StatusOpen))
	assert.False(t, CanTransition(StatusOpen, StatusDraft))
	assert.False(t, CanTransition(StatusClosed, StatusDraft))
	assert.False(t, CanTransition(StatusDraft, StatusClosed))
	assert.False(t, CanTransition(StatusOpen, StatusOpen))
}
