package survey_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/store/sqlite"
	"github.com/warp/kyudo-console/survey"
)

// =============================================================================
// FIXTURE
// =============================================================================

type fixture struct {
	ctx    context.Context
	store  *sqlite.Store
	rc     *survey.Reconciler
	rs     *survey.Responder
	editor *survey.Editor
	admin  survey.Viewer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rc := survey.NewReconciler(store)
	f := &fixture{
		ctx:    context.Background(),
		store:  store,
		rc:     rc,
		rs:     survey.NewResponder(store, rc),
		editor: survey.NewEditor(store),
		admin:  survey.Viewer{AccountID: "admin", Admin: true},
	}
	f.member(t, membership.Profile{AccountID: "admin", DisplayName: "Admin", Generation: "50"})
	return f
}

func (f *fixture) member(t *testing.T, p membership.Profile) survey.Viewer {
	t.Helper()
	now := time.Now().UTC()
	p.UpdatedAt = now
	err := f.store.CreateAccount(f.ctx, membership.Account{
		ID:           p.AccountID,
		Email:        p.AccountID + "@club.test",
		PasswordHash: "unused",
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, p)
	require.NoError(t, err)
	return survey.Viewer{AccountID: p.AccountID}
}

func simpleDraft(title string) survey.Draft {
	return survey.Draft{
		Title: title,
		Questions: []survey.DraftQuestion{
			{Prompt: "Attending the summer camp?", Type: survey.QuestionSingle, Options: []string{"Yes", "No"}},
			{Prompt: "Which days?", Type: survey.QuestionMultiple, AllowOptionAdd: true, Options: []string{"Sat", "Sun"}},
		},
	}
}

// open creates the draft, opens it, and returns the id and its questions.
func (f *fixture) open(t *testing.T, d survey.Draft) (string, []survey.Question) {
	t.Helper()
	sv, err := f.editor.Create(f.ctx, "admin", d)
	require.NoError(t, err)
	_, err = f.editor.SetStatus(f.ctx, sv.ID, survey.StatusOpen)
	require.NoError(t, err)
	qs, err := f.store.ListQuestions(f.ctx, sv.ID)
	require.NoError(t, err)
	return sv.ID, qs
}

func answersFor(qs []survey.Question, pick ...int) []survey.SubmittedAnswer {
	out := make([]survey.SubmittedAnswer, len(qs))
	for i, q := range qs {
		out[i] = survey.SubmittedAnswer{QuestionID: q.ID, OptionIDs: []string{q.Options[pick[i]].ID}}
	}
	return out
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

func TestEligibility_TargetGroupScenario(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, membership.Profile{AccountID: "a", DisplayName: "A", Generation: "60", Department: "science"})
	b := f.member(t, membership.Profile{AccountID: "b", DisplayName: "B", Generation: "59", Department: "Engineering Club"})
	c := f.member(t, membership.Profile{AccountID: "c", DisplayName: "C", Generation: "59", Department: "science"})

	d := simpleDraft("Targeted")
	d.TargetGroups = [][]survey.Condition{
		{{Field: survey.FieldGeneration, Op: survey.OpEq, Value: "60"}},
		{{Field: survey.FieldDepartment, Op: survey.OpILike, Value: "eng"}},
	}
	id, _ := f.open(t, d)

	for _, tc := range []struct {
		viewer survey.Viewer
		want   bool
	}{{a, true}, {b, true}, {c, false}} {
		ok, err := f.rc.ViewerEligible(f.ctx, id, tc.viewer.AccountID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, tc.viewer.AccountID)
	}

	pop, err := f.rc.EligibleAccounts(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pop.Sorted())
}

func TestEligibility_NoTargetingMeansEveryProfile(t *testing.T) {
	f := newFixture(t)
	f.member(t, membership.Profile{AccountID: "a", DisplayName: "A"})
	id, _ := f.open(t, simpleDraft("Everyone"))

	pop, err := f.rc.EligibleAccounts(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "admin"}, pop.Sorted())
}

func TestEligibility_ExplicitTargetsIgnoreGroups(t *testing.T) {
	f := newFixture(t)
	f.member(t, membership.Profile{AccountID: "a", DisplayName: "A", Generation: "60"})
	f.member(t, membership.Profile{AccountID: "b", DisplayName: "B", Generation: "59"})

	// GIVEN: a group that matches only a, and an explicit target list of only b
	d := simpleDraft("Explicit")
	d.TargetAccountIDs = []string{"b"}
	d.TargetGroups = [][]survey.Condition{{{Field: survey.FieldGeneration, Op: survey.OpEq, Value: "60"}}}
	sv, err := f.editor.Create(f.ctx, "admin", d)
	require.NoError(t, err)

	check := func() {
		pop, err := f.rc.EligibleAccounts(f.ctx, sv.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, pop.Sorted())

		okA, err := f.rc.ViewerEligible(f.ctx, sv.ID, "a")
		require.NoError(t, err)
		okB, err := f.rc.ViewerEligible(f.ctx, sv.ID, "b")
		require.NoError(t, err)
		assert.False(t, okA)
		assert.True(t, okB)
	}
	check()

	// WHEN: the groups change but the explicit list does not
	d.TargetGroups = [][]survey.Condition{{{Field: survey.FieldGeneration, Op: survey.OpEq, Value: "59"}}}
	_, err = f.editor.Replace(f.ctx, "admin", sv.ID, d)
	require.NoError(t, err)
	check()

	d.TargetGroups = nil
	_, err = f.editor.Replace(f.ctx, "admin", sv.ID, d)
	require.NoError(t, err)

	// THEN: eligibility is unchanged
	check()
}

func TestEligibility_QueryMatchesInMemoryEvaluator(t *testing.T) {
	f := newFixture(t)
	profiles := []membership.Profile{
		{AccountID: "p01", DisplayName: "Sato Taro", Generation: "60", Gender: "male", Department: "Engineering"},
		{AccountID: "p02", DisplayName: "SATO Jiro", Generation: "６０", Gender: "male", Department: "science"},
		{AccountID: "p03", DisplayName: "Suzuki Hanako", Generation: "59", Gender: "female", Department: "ＥＮＧ Club"},
		{AccountID: "p04", DisplayName: "Takahashi", Generation: "58", Department: "economics"},
		{AccountID: "p05", DisplayName: "Ito", Generation: "", Gender: "", Department: ""},
		{AccountID: "p06", DisplayName: "Watanabe Kei", Generation: "61", Gender: "female", Ryuha: "Heki-ryu", Position: "Captain"},
		{AccountID: "p07", DisplayName: "山田 花子", Generation: "60", Gender: "female", Department: "文学部", StudentNumber: "A2024-007"},
		{AccountID: "p08", DisplayName: "ﾔﾏﾀﾞ", Generation: "59", Department: "Mechanical Engineering", StudentNumber: "a2023-100"},
	}
	for _, p := range profiles {
		f.member(t, p)
	}

	eq := func(field survey.Field, v string) survey.Condition {
		return survey.Condition{Field: field, Op: survey.OpEq, Value: v}
	}
	like := func(field survey.Field, v string) survey.Condition {
		return survey.Condition{Field: field, Op: survey.OpILike, Value: v}
	}
	ruleSets := map[string][]survey.TargetGroup{
		"single eq":        {{ID: "g1", Conditions: []survey.Condition{eq(survey.FieldGeneration, "60")}}},
		"full-width value": {{ID: "g1", Conditions: []survey.Condition{eq(survey.FieldGeneration, "６０")}}},
		"generation list":  {{ID: "g1", Conditions: []survey.Condition{eq(survey.FieldGeneration, "58,61")}}},
		"ilike ascii":      {{ID: "g1", Conditions: []survey.Condition{like(survey.FieldDepartment, "eng")}}},
		"ilike kana":       {{ID: "g1", Conditions: []survey.Condition{like(survey.FieldDisplayName, "ヤマ")}}},
		"ilike kanji":      {{ID: "g1", Conditions: []survey.Condition{like(survey.FieldDepartment, "文学")}}},
		"student number":   {{ID: "g1", Conditions: []survey.Condition{like(survey.FieldStudentNumber, "A202")}}},
		"and within group": {{ID: "g1", Conditions: []survey.Condition{
			eq(survey.FieldGender, "FEMALE"), like(survey.FieldDisplayName, "hanako"),
		}}},
		"or across groups": {
			{ID: "g1", Conditions: []survey.Condition{eq(survey.FieldGeneration, "59"), eq(survey.FieldGender, "female")}},
			{ID: "g2", Conditions: []survey.Condition{like(survey.FieldPosition, "capt")}},
			{ID: "g3", Conditions: []survey.Condition{like(survey.FieldRyuha, "ogasawara")}},
		},
		"nothing matches": {{ID: "g1", Conditions: []survey.Condition{eq(survey.FieldGender, "other")}}},
		"no groups":       nil,
	}

	ids, err := f.store.ListAllAccountIDs(f.ctx)
	require.NoError(t, err)
	var all []survey.ProfileFields
	for _, id := range ids {
		p, err := f.store.GetProfileFields(f.ctx, id)
		require.NoError(t, err)
		require.NotNil(t, p)
		all = append(all, *p)
	}

	for name, groups := range ruleSets {
		t.Run(name, func(t *testing.T) {
			want := []string{}
			for _, p := range all {
				if survey.MatchesAnyGroup(p, groups) {
					want = append(want, p.AccountID)
				}
			}
			sort.Strings(want)

			got, err := f.store.ResolveAccountIDs(f.ctx, groups)
			require.NoError(t, err)
			if got == nil {
				got = []string{}
			}
			sort.Strings(got)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("query path disagrees with evaluator (-memory +query):\n%s", diff)
			}
		})
	}
}

// =============================================================================
// RESPONSES
// =============================================================================

func TestSubmit_ResubmitReplacesResponse(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, membership.Profile{AccountID: "m", DisplayName: "M"})
	id, qs := f.open(t, simpleDraft("Camp"))

	answers := answersFor(qs, 0, 1)
	require.NoError(t, f.rs.Submit(f.ctx, m, id, answers))
	require.NoError(t, f.rs.Submit(f.ctx, m, id, answers))

	respondents, err := f.store.ListRespondents(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, respondents)

	rows, err := f.store.ListAnswers(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "one answer per question, not duplicated")

	// Changing the answer replaces the whole set.
	require.NoError(t, f.rs.Submit(f.ctx, m, id, []survey.SubmittedAnswer{
		{QuestionID: qs[0].ID, OptionIDs: []string{qs[0].Options[1].ID}},
		{QuestionID: qs[1].ID, OptionIDs: []string{qs[1].Options[0].ID, qs[1].Options[1].ID}},
	}))
	resp, err := f.store.GetResponse(f.ctx, id, "m")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, []string{qs[0].Options[1].ID}, resp.Answers[qs[0].ID])
	assert.ElementsMatch(t, []string{qs[1].Options[0].ID, qs[1].Options[1].ID}, resp.Answers[qs[1].ID])
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, membership.Profile{AccountID: "m", DisplayName: "M", Generation: "59"})

	t.Run("unknown survey", func(t *testing.T) {
		err := f.rs.Submit(f.ctx, m, "nope", nil)
		assert.ErrorIs(t, err, survey.ErrSurveyNotFound)
	})

	t.Run("draft is not open", func(t *testing.T) {
		sv, err := f.editor.Create(f.ctx, "admin", simpleDraft("Draft"))
		require.NoError(t, err)
		assert.ErrorIs(t, f.rs.Submit(f.ctx, m, sv.ID, nil), survey.ErrNotOpen)
	})

	t.Run("past closing time", func(t *testing.T) {
		d := simpleDraft("Closed window")
		closed := time.Now().Add(-time.Hour)
		d.ClosesAt = &closed
		id, qs := f.open(t, d)
		assert.ErrorIs(t, f.rs.Submit(f.ctx, m, id, answersFor(qs, 0, 0)), survey.ErrNotOpen)
	})

	t.Run("not eligible", func(t *testing.T) {
		d := simpleDraft("Gen 60 only")
		d.TargetGroups = [][]survey.Condition{{{Field: survey.FieldGeneration, Op: survey.OpEq, Value: "60"}}}
		id, qs := f.open(t, d)
		assert.ErrorIs(t, f.rs.Submit(f.ctx, m, id, answersFor(qs, 0, 0)), survey.ErrNotEligible)
	})

	t.Run("single choice with two options", func(t *testing.T) {
		id, qs := f.open(t, simpleDraft("Cardinality"))
		err := f.rs.Submit(f.ctx, m, id, []survey.SubmittedAnswer{
			{QuestionID: qs[0].ID, OptionIDs: []string{qs[0].Options[0].ID, qs[0].Options[1].ID}},
			{QuestionID: qs[1].ID, OptionIDs: []string{qs[1].Options[0].ID}},
		})
		assert.ErrorIs(t, err, survey.ErrSingleChoice)

		resp, err := f.store.GetResponse(f.ctx, id, "m")
		require.NoError(t, err)
		assert.Nil(t, resp, "nothing is written on rejection")
	})
}

func TestAppendOption(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, membership.Profile{AccountID: "m", DisplayName: "M"})
	id, qs := f.open(t, simpleDraft("Options"))

	opt, err := f.rs.AppendOption(f.ctx, m, id, qs[1].ID, "  Mon ")
	require.NoError(t, err)
	assert.Equal(t, "Mon", opt.Label)
	assert.Equal(t, "m", opt.CreatedBy)

	again, err := f.rs.AppendOption(f.ctx, m, id, qs[1].ID, "ＭＯＮ")
	require.NoError(t, err)
	assert.Equal(t, opt.ID, again.ID, "an equivalent label returns the existing option")

	qs2, err := f.store.ListQuestions(f.ctx, id)
	require.NoError(t, err)
	labels := []string{}
	for _, o := range qs2[1].Options {
		labels = append(labels, o.Label)
	}
	assert.Equal(t, []string{"Sat", "Sun", "Mon"}, labels, "insertion order")

	_, err = f.rs.AppendOption(f.ctx, m, id, qs[0].ID, "Maybe")
	assert.ErrorIs(t, err, survey.ErrOptionAddDisabled)

	_, err = f.rs.AppendOption(f.ctx, m, id, "missing", "x")
	assert.ErrorIs(t, err, survey.ErrQuestionNotFound)

	_, err = f.rs.AppendOption(f.ctx, m, id, qs[1].ID, " ")
	assert.ErrorIs(t, err, survey.ErrEmptyLabel)
}

// =============================================================================
// DETAIL
// =============================================================================

func TestDetail_DraftHiddenFromMembers(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, membership.Profile{AccountID: "m", DisplayName: "M"})
	sv, err := f.editor.Create(f.ctx, "admin", simpleDraft("Secret"))
	require.NoError(t, err)

	_, err = f.rc.Detail(f.ctx, m, sv.ID)
	assert.ErrorIs(t, err, survey.ErrDraftHidden)

	d, err := f.rc.Detail(f.ctx, f.admin, sv.ID)
	require.NoError(t, err)
	assert.False(t, d.CanAnswer)

	list, err := f.rc.List(f.ctx, m)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDetail_AnonymousNeverRevealsRespondents(t *testing.T) {
	for _, anonymous := range []bool{true, false} {
		t.Run(map[bool]string{true: "anonymous", false: "named"}[anonymous], func(t *testing.T) {
			f := newFixture(t)
			a := f.member(t, membership.Profile{AccountID: "a", DisplayName: "A"})
			f.member(t, membership.Profile{AccountID: "b", DisplayName: "B"})

			d := simpleDraft("Poll")
			d.IsAnonymous = anonymous
			id, qs := f.open(t, d)
			require.NoError(t, f.rs.Submit(f.ctx, a, id, answersFor(qs, 0, 1)))

			yes := qs[0].Options[0].ID
			for _, viewer := range []survey.Viewer{f.admin, a} {
				det, err := f.rc.Detail(f.ctx, viewer, id)
				require.NoError(t, err)
				assert.Equal(t, 1, det.Results.CountsByOption[yes])
				assert.Equal(t, 0, det.Results.CountsByOption[qs[0].Options[1].ID])
				if viewer.Admin {
					// Participation stays visible so officers can send reminders
					require.Len(t, det.Results.Unresponded, 1)
					assert.Equal(t, "B", det.Results.Unresponded[0].DisplayName)
				}
				if anonymous || !viewer.Admin {
					assert.Empty(t, det.Results.RespondentsByOption)
				} else {
					require.Len(t, det.Results.RespondentsByOption[yes], 1)
					assert.Equal(t, "A", det.Results.RespondentsByOption[yes][0].DisplayName)
				}
			}
		})
	}
}

func TestDetail_AggregatesOverEligibleOnly(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, membership.Profile{AccountID: "a", DisplayName: "A", Generation: "60"})
	b := f.member(t, membership.Profile{AccountID: "b", DisplayName: "B", Generation: "60"})
	f.member(t, membership.Profile{AccountID: "c", DisplayName: "C", Generation: "60"})

	d := simpleDraft("Gen 60")
	d.TargetGroups = [][]survey.Condition{{{Field: survey.FieldGeneration, Op: survey.OpEq, Value: "60"}}}
	id, qs := f.open(t, d)
	require.NoError(t, f.rs.Submit(f.ctx, a, id, answersFor(qs, 0, 0)))
	require.NoError(t, f.rs.Submit(f.ctx, b, id, answersFor(qs, 1, 0)))

	// GIVEN: b leaves generation 60 after responding
	p, err := f.store.GetProfile(f.ctx, "b")
	require.NoError(t, err)
	p.Generation = "61"
	require.NoError(t, f.store.UpdateProfile(f.ctx, *p))

	// WHEN
	det, err := f.rc.Detail(f.ctx, f.admin, id)
	require.NoError(t, err)

	// THEN: b's response no longer counts
	res := det.Results
	assert.Equal(t, 2, res.EligibleCount)
	assert.Equal(t, 1, res.RespondedCount)
	assert.Equal(t, 50.0, res.ResponseRate)
	assert.Equal(t, 0, res.CountsByOption[qs[0].Options[1].ID])
	require.Len(t, res.Unresponded, 1)
	assert.Equal(t, "c", res.Unresponded[0].AccountID)
	assert.False(t, det.Eligible, "admin is generation 50")

	mine, err := f.rc.Detail(f.ctx, a, id)
	require.NoError(t, err)
	assert.True(t, mine.Eligible)
	assert.True(t, mine.CanAnswer, "a can still change the answer")
	require.NotNil(t, mine.MyResponse)
	assert.Nil(t, mine.Results.Unresponded, "members never see who has not answered")
}

func TestList_AnnotatesPerViewer(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, membership.Profile{AccountID: "m", DisplayName: "M"})
	answered, qs := f.open(t, simpleDraft("Answered"))
	pending, _ := f.open(t, simpleDraft("Pending"))
	require.NoError(t, f.rs.Submit(f.ctx, m, answered, answersFor(qs, 0, 0)))

	list, err := f.rc.List(f.ctx, m)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[string]survey.Summary{}
	for _, s := range list {
		byID[s.Survey.ID] = s
	}
	assert.True(t, byID[answered].Responded)
	assert.False(t, byID[answered].RequiresResponse)
	assert.True(t, byID[pending].RequiresResponse)
	assert.Equal(t, survey.AvailabilityOpen, byID[pending].Availability)
}

// =============================================================================
// AUTHORING
// =============================================================================

func TestEditor_Lifecycle(t *testing.T) {
	f := newFixture(t)

	sv, err := f.editor.Create(f.ctx, "admin", simpleDraft("v1"))
	require.NoError(t, err)
	assert.Equal(t, survey.StatusDraft, sv.Status)

	_, err = f.editor.SetStatus(f.ctx, sv.ID, survey.StatusClosed)
	assert.ErrorIs(t, err, survey.ErrBadTransition)

	_, err = f.editor.SetStatus(f.ctx, sv.ID, survey.StatusOpen)
	require.NoError(t, err)

	_, err = f.editor.Replace(f.ctx, "admin", sv.ID, simpleDraft("v2"))
	assert.ErrorIs(t, err, survey.ErrNotDraft)

	_, err = f.editor.SetStatus(f.ctx, sv.ID, survey.StatusDraft)
	assert.ErrorIs(t, err, survey.ErrBadTransition)

	closed, err := f.editor.SetStatus(f.ctx, sv.ID, survey.StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, survey.StatusClosed, closed.Status)

	n, err := f.editor.Delete(f.ctx, []string{sv.ID, sv.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetSurvey(f.ctx, sv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEditor_RejectsUnknownTargetAccount(t *testing.T) {
	f := newFixture(t)
	d := simpleDraft("Explicit")
	d.TargetAccountIDs = []string{"ghost"}
	_, err := f.editor.Create(f.ctx, "admin", d)
	assert.EqualError(t, err, "unknown target account")
}

func TestEditor_ReplaceRebuildsDraft(t *testing.T) {
	f := newFixture(t)
	sv, err := f.editor.Create(f.ctx, "admin", simpleDraft("v1"))
	require.NoError(t, err)

	d := survey.Draft{
		Title: "v2",
		Questions: []survey.DraftQuestion{
			{Prompt: "Only question", Type: survey.QuestionSingle, Options: []string{"A", "B", "C"}},
		},
		TargetGroups: [][]survey.Condition{{{Field: survey.FieldGender, Op: survey.OpEq, Value: "female"}}},
	}
	_, err = f.editor.Replace(f.ctx, "admin", sv.ID, d)
	require.NoError(t, err)

	got, err := f.store.GetSurvey(f.ctx, sv.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.WithinDuration(t, sv.CreatedAt, got.CreatedAt, time.Millisecond)

	qs, err := f.store.ListQuestions(f.ctx, sv.ID)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Len(t, qs[0].Options, 3)

	groups, err := f.store.ListTargetGroups(f.ctx, sv.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []survey.Condition{{Field: survey.FieldGender, Op: survey.OpEq, Value: "female"}}, groups[0].Conditions)
}

// =============================================================================
// ANALYTICS
// =============================================================================

func TestAnalytics_RollsUpPerAccount(t *testing.T) {
	f := newFixture(t)
	a := f.member(t, membership.Profile{AccountID: "a", DisplayName: "A", Generation: "60"})
	f.member(t, membership.Profile{AccountID: "b", DisplayName: "B", Generation: "59"})

	s1, q1 := f.open(t, simpleDraft("s1"))
	d := simpleDraft("s2")
	d.TargetGroups = [][]survey.Condition{{{Field: survey.FieldGeneration, Op: survey.OpEq, Value: "60"}}}
	s2, q2 := f.open(t, d)
	_, err := f.editor.Create(f.ctx, "admin", simpleDraft("draft is ignored"))
	require.NoError(t, err)

	require.NoError(t, f.rs.Submit(f.ctx, a, s1, answersFor(q1, 0, 0)))
	require.NoError(t, f.rs.Submit(f.ctx, a, s2, answersFor(q2, 0, 0)))

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	rates, err := f.rc.Analytics(f.ctx, start, end)
	require.NoError(t, err)

	byID := map[string]survey.AccountRate{}
	for _, r := range rates {
		byID[r.AccountID] = r
	}
	assert.Equal(t, 2, byID["a"].EligibleCount)
	assert.Equal(t, 2, byID["a"].RespondedCount)
	assert.Equal(t, 100.0, byID["a"].ResponseRate)
	assert.Equal(t, 1, byID["b"].EligibleCount)
	assert.Equal(t, 0.0, byID["b"].ResponseRate)
	assert.Equal(t, "B", byID["b"].DisplayName)

	_, err = f.rc.Analytics(f.ctx, end, start)
	assert.ErrorIs(t, err, survey.ErrInvalidRange)
}
