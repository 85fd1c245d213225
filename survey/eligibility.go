/*
eligibility.go - Eligible population, viewer state, and aggregated results

PURPOSE:
  Decides who may answer a survey and reconciles stored responses against
  that population.

PRECEDENCE:
  1. Explicit targets exist  -> exactly that set (groups ignored)
  2. Target groups exist     -> accounts matching at least one group
  3. Neither                 -> every profile

AGGREGATES:
  Only responses from eligible accounts are counted. Response rate is a one
  decimal percentage and 0 when nobody is eligible. Respondent identities are
  never exposed for anonymous surveys, whoever is asking.

FAILURE:
  Any storage error aborts the whole computation. No partial aggregate is
  ever returned.
*/
package survey

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Viewer is the account looking at surveys.
type Viewer struct {
	AccountID string
	// Admin is true when the viewer holds survey administration rights.
	Admin bool
}

// Reconciler computes eligibility and results.
type Reconciler struct {
	store Store
	now   func() time.Time
}

// NewReconciler creates a reconciler over the store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (rc *Reconciler) WithClock(now func() time.Time) *Reconciler {
	rc.now = now
	return rc
}

// =============================================================================
// AVAILABILITY
// =============================================================================

// AvailabilityAt derives the time-window state of s at now.
func AvailabilityAt(s Survey, now time.Time) Availability {
	if s.OpensAt != nil && now.Before(*s.OpensAt) {
		return AvailabilityUpcoming
	}
	if s.ClosesAt != nil && now.After(*s.ClosesAt) {
		return AvailabilityClosed
	}
	return AvailabilityOpen
}

// CanAnswer reports whether an eligible account may submit right now.
func CanAnswer(s Survey, avail Availability, eligible bool) bool {
	return s.Status == StatusOpen && avail == AvailabilityOpen && eligible
}

// ResponseRate returns responded/eligible as a percentage rounded to one
// decimal. It is 0 when eligible is 0.
func ResponseRate(responded, eligible int) float64 {
	if eligible <= 0 {
		return 0
	}
	return math.Round(float64(responded)/float64(eligible)*1000) / 10
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

// EligibleAccounts returns the eligible population of a survey.
func (rc *Reconciler) EligibleAccounts(ctx context.Context, surveyID string) (AccountSet, error) {
	explicit, err := rc.store.ListExplicitTargets(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list explicit targets: %w", err)
	}
	if len(explicit) > 0 {
		return NewAccountSet(explicit...), nil
	}

	groups, err := rc.store.ListTargetGroups(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list target groups: %w", err)
	}
	var ids []string
	if len(groups) == 0 {
		ids, err = rc.store.ListAllAccountIDs(ctx)
	} else {
		ids, err = rc.store.ResolveAccountIDs(ctx, groups)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve eligible accounts: %w", err)
	}
	return NewAccountSet(ids...), nil
}

// ViewerEligible reports whether one account may answer the survey.
func (rc *Reconciler) ViewerEligible(ctx context.Context, surveyID, accountID string) (bool, error) {
	explicit, err := rc.store.ListExplicitTargets(ctx, surveyID)
	if err != nil {
		return false, fmt.Errorf("list explicit targets: %w", err)
	}
	if len(explicit) > 0 {
		return NewAccountSet(explicit...).Has(accountID), nil
	}

	groups, err := rc.store.ListTargetGroups(ctx, surveyID)
	if err != nil {
		return false, fmt.Errorf("list target groups: %w", err)
	}
	if len(groups) == 0 {
		return true, nil
	}
	profile, err := rc.store.GetProfileFields(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("get profile: %w", err)
	}
	if profile == nil {
		return false, nil
	}
	return MatchesAnyGroup(*profile, groups), nil
}

// =============================================================================
// LIST
// =============================================================================

// Summary is a survey annotated for one viewer.
type Summary struct {
	Survey           Survey
	Eligible         bool
	Responded        bool
	Availability     Availability
	CanAnswer        bool
	RequiresResponse bool
}

// List returns the surveys visible to the viewer. Drafts are only listed for
// survey administrators.
func (rc *Reconciler) List(ctx context.Context, v Viewer) ([]Summary, error) {
	surveys, err := rc.store.ListSurveys(ctx, ListFilter{IncludeDraft: v.Admin})
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	responded, err := rc.store.RespondedSurveyIDs(ctx, v.AccountID)
	if err != nil {
		return nil, fmt.Errorf("list responded surveys: %w", err)
	}
	done := NewAccountSet(responded...)

	now := rc.now()
	out := make([]Summary, 0, len(surveys))
	for _, s := range surveys {
		eligible, err := rc.ViewerEligible(ctx, s.ID, v.AccountID)
		if err != nil {
			return nil, err
		}
		avail := AvailabilityAt(s, now)
		can := CanAnswer(s, avail, eligible)
		out = append(out, Summary{
			Survey:           s,
			Eligible:         eligible,
			Responded:        done.Has(s.ID),
			Availability:     avail,
			CanAnswer:        can,
			RequiresResponse: can && !done.Has(s.ID),
		})
	}
	return out, nil
}

// =============================================================================
// DETAIL
// =============================================================================

// Results are the aggregates over the eligible population.
type Results struct {
	RespondedCount int
	EligibleCount  int
	ResponseRate   float64
	// CountsByOption has an entry for every option of the survey.
	CountsByOption map[string]int
	// RespondentsByOption is nil for anonymous surveys and for viewers
	// without administration rights.
	RespondentsByOption map[string][]Respondent
	// Unresponded is nil for viewers without administration rights.
	Unresponded []Respondent
}

// Detail is the full view of one survey for one viewer.
type Detail struct {
	Survey       Survey
	Questions    []Question
	Eligible     bool
	Availability Availability
	CanAnswer    bool
	MyResponse   *Response
	Results      Results
}

// Detail reconciles one survey for the viewer.
func (rc *Reconciler) Detail(ctx context.Context, v Viewer, surveyID string) (*Detail, error) {
	s, err := rc.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	if s == nil {
		return nil, ErrSurveyNotFound
	}
	if s.Status == StatusDraft && !v.Admin {
		return nil, ErrDraftHidden
	}

	var (
		questions   []Question
		eligibleSet AccountSet
		viewerOK    bool
		respondents []string
		answers     []AnswerRow
		mine        *Response
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		questions, err = rc.store.ListQuestions(gctx, surveyID)
		return err
	})
	g.Go(func() (err error) {
		eligibleSet, err = rc.EligibleAccounts(gctx, surveyID)
		return err
	})
	g.Go(func() (err error) {
		viewerOK, err = rc.ViewerEligible(gctx, surveyID, v.AccountID)
		return err
	})
	g.Go(func() (err error) {
		respondents, err = rc.store.ListRespondents(gctx, surveyID)
		return err
	})
	g.Go(func() (err error) {
		answers, err = rc.store.ListAnswers(gctx, surveyID)
		return err
	})
	g.Go(func() (err error) {
		mine, err = rc.store.GetResponse(gctx, surveyID, v.AccountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile survey %s: %w", surveyID, err)
	}

	results, err := rc.aggregate(ctx, *s, v, questions, eligibleSet, respondents, answers)
	if err != nil {
		return nil, err
	}

	avail := AvailabilityAt(*s, rc.now())
	return &Detail{
		Survey:       *s,
		Questions:    questions,
		Eligible:     viewerOK,
		Availability: avail,
		CanAnswer:    CanAnswer(*s, avail, viewerOK),
		MyResponse:   mine,
		Results:      results,
	}, nil
}

func (rc *Reconciler) aggregate(
	ctx context.Context,
	s Survey,
	v Viewer,
	questions []Question,
	eligible AccountSet,
	respondents []string,
	answers []AnswerRow,
) (Results, error) {
	responded := AccountSet{}
	for _, id := range respondents {
		if eligible.Has(id) {
			responded[id] = struct{}{}
		}
	}

	counts := make(map[string]int)
	for _, q := range questions {
		for _, o := range q.Options {
			counts[o.ID] = 0
		}
	}
	byOption := make(map[string][]string)
	for _, a := range answers {
		if !eligible.Has(a.AccountID) {
			continue
		}
		if _, ok := counts[a.OptionID]; !ok {
			continue
		}
		counts[a.OptionID]++
		byOption[a.OptionID] = append(byOption[a.OptionID], a.AccountID)
	}

	res := Results{
		RespondedCount: len(responded),
		EligibleCount:  len(eligible),
		ResponseRate:   ResponseRate(len(responded), len(eligible)),
		CountsByOption: counts,
	}
	if !v.Admin {
		return res, nil
	}

	var missing []string
	for id := range eligible {
		if !responded.Has(id) {
			missing = append(missing, id)
		}
	}
	need := NewAccountSet(missing...)
	if !s.IsAnonymous {
		for _, ids := range byOption {
			for _, id := range ids {
				need[id] = struct{}{}
			}
		}
	}
	identities, err := rc.store.ListRespondentIdentities(ctx, need.Sorted())
	if err != nil {
		return Results{}, fmt.Errorf("list respondent identities: %w", err)
	}
	who := make(map[string]Respondent, len(identities))
	for _, r := range identities {
		who[r.AccountID] = r
	}
	lookup := func(id string) Respondent {
		if r, ok := who[id]; ok {
			return r
		}
		return Respondent{AccountID: id}
	}

	// Anonymity hides answers, not participation: non-respondents are listed
	// for every survey.
	res.Unresponded = make([]Respondent, 0, len(missing))
	for _, id := range missing {
		res.Unresponded = append(res.Unresponded, lookup(id))
	}
	sortRespondents(res.Unresponded)

	if !s.IsAnonymous {
		res.RespondentsByOption = make(map[string][]Respondent, len(byOption))
		for opt, ids := range byOption {
			list := make([]Respondent, 0, len(ids))
			for _, id := range ids {
				list = append(list, lookup(id))
			}
			sortRespondents(list)
			res.RespondentsByOption[opt] = list
		}
	}
	return res, nil
}

func sortRespondents(rs []Respondent) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Generation != rs[j].Generation {
			return rs[i].Generation < rs[j].Generation
		}
		if rs[i].StudentNumber != rs[j].StudentNumber {
			return rs[i].StudentNumber < rs[j].StudentNumber
		}
		return rs[i].AccountID < rs[j].AccountID
	})
}

// =============================================================================
// ANALYTICS
// =============================================================================

// AccountRate is the per-account participation rollup.
type AccountRate struct {
	Respondent
	EligibleCount  int
	RespondedCount int
	ResponseRate   float64
}

// analyticsParallelism bounds concurrent per-survey reconciliation.
const analyticsParallelism = 4

// Analytics rolls up participation per account across every non-draft survey
// created in [start, end].
func (rc *Reconciler) Analytics(ctx context.Context, start, end time.Time) ([]AccountRate, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	surveys, err := rc.store.ListSurveys(ctx, ListFilter{CreatedFrom: &start, CreatedTo: &end})
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}

	var (
		mu        sync.Mutex
		eligible  = map[string]int{}
		responded = map[string]int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analyticsParallelism)
	for _, s := range surveys {
		if s.Status == StatusDraft {
			continue
		}
		g.Go(func() error {
			pop, err := rc.EligibleAccounts(gctx, s.ID)
			if err != nil {
				return err
			}
			ids, err := rc.store.ListRespondents(gctx, s.ID)
			if err != nil {
				return err
			}
			done := NewAccountSet(ids...)

			mu.Lock()
			defer mu.Unlock()
			for id := range pop {
				eligible[id]++
				if done.Has(id) {
					responded[id]++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("survey analytics: %w", err)
	}

	ids := make([]string, 0, len(eligible))
	for id := range eligible {
		ids = append(ids, id)
	}
	identities, err := rc.store.ListRespondentIdentities(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list respondent identities: %w", err)
	}
	who := make(map[string]Respondent, len(identities))
	for _, r := range identities {
		who[r.AccountID] = r
	}

	out := make([]AccountRate, 0, len(ids))
	for _, id := range ids {
		r, ok := who[id]
		if !ok {
			r = Respondent{AccountID: id}
		}
		out = append(out, AccountRate{
			Respondent:     r,
			EligibleCount:  eligible[id],
			RespondedCount: responded[id],
			ResponseRate:   ResponseRate(responded[id], eligible[id]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Respondent, out[j].Respondent
		if a.Generation != b.Generation {
			return a.Generation < b.Generation
		}
		if a.StudentNumber != b.StudentNumber {
			return a.StudentNumber < b.StudentNumber
		}
		return a.AccountID < b.AccountID
	})
	return out, nil
}
