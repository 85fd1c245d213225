package survey

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxOptionLabel bounds respondent-added option labels (in runes).
const maxOptionLabel = 200

// SubmittedAnswer is the selection for one question as sent by a respondent.
type SubmittedAnswer struct {
	QuestionID string
	OptionIDs  []string
}

// ValidateAnswers checks a full answer set against the live questions and
// returns it keyed by question id with duplicate option ids removed.
// The submission is accepted or rejected as a whole.
func ValidateAnswers(questions []Question, submitted []SubmittedAnswer) (map[string][]string, error) {
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	selected := make(map[string][]string, len(submitted))
	for _, a := range submitted {
		if _, ok := byID[a.QuestionID]; !ok {
			return nil, ErrInvalidQuestion
		}
		selected[a.QuestionID] = appendUnique(selected[a.QuestionID], a.OptionIDs...)
	}

	for _, q := range questions {
		opts := selected[q.ID]
		if len(opts) == 0 {
			return nil, ErrIncomplete
		}
		switch q.Type {
		case QuestionSingle:
			if len(opts) != 1 {
				return nil, ErrSingleChoice
			}
		case QuestionMultiple:
		default:
			return nil, fmt.Errorf("question %s has unknown type %q", q.ID, q.Type)
		}
		for _, id := range opts {
			if !q.HasOption(id) {
				return nil, ErrInvalidOption
			}
		}
	}
	return selected, nil
}

func appendUnique(dst []string, ids ...string) []string {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		dup := false
		for _, have := range dst {
			if have == id {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, id)
		}
	}
	return dst
}

// =============================================================================
// RESPONDER
// =============================================================================

// Responder accepts submissions and respondent-added options.
type Responder struct {
	store      Store
	reconciler *Reconciler
	now        func() time.Time
	newID      func() string
}

// NewResponder creates a responder. The reconciler supplies eligibility.
func NewResponder(store Store, reconciler *Reconciler) *Responder {
	return &Responder{
		store:      store,
		reconciler: reconciler,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// WithClock overrides the time source.
func (rs *Responder) WithClock(now func() time.Time) *Responder {
	rs.now = now
	return rs
}

// openFor loads the survey and checks it accepts input from the viewer.
func (rs *Responder) openFor(ctx context.Context, v Viewer, surveyID string) (*Survey, error) {
	s, err := rs.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	if s == nil {
		return nil, ErrSurveyNotFound
	}
	if s.Status != StatusOpen || AvailabilityAt(*s, rs.now()) != AvailabilityOpen {
		return nil, ErrNotOpen
	}
	eligible, err := rs.reconciler.ViewerEligible(ctx, surveyID, v.AccountID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, ErrNotEligible
	}
	return s, nil
}

// Submit validates the answers and stores them as the viewer's response,
// replacing any previous response in full.
func (rs *Responder) Submit(ctx context.Context, v Viewer, surveyID string, answers []SubmittedAnswer) error {
	if _, err := rs.openFor(ctx, v, surveyID); err != nil {
		return err
	}
	questions, err := rs.store.ListQuestions(ctx, surveyID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	selected, err := ValidateAnswers(questions, answers)
	if err != nil {
		return err
	}
	if _, err := rs.store.UpsertResponse(ctx, surveyID, v.AccountID, selected, rs.now()); err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

// AppendOption adds a respondent-written option to a question that allows it.
// An option whose label already exists (ignoring case and width) is returned
// instead of creating a duplicate.
func (rs *Responder) AppendOption(ctx context.Context, v Viewer, surveyID, questionID, label string) (*Option, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}
	if utf8.RuneCountInString(label) > maxOptionLabel {
		return nil, ErrLabelTooLong
	}

	questions, err := rs.store.ListQuestions(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	var q *Question
	for i := range questions {
		if questions[i].ID == questionID {
			q = &questions[i]
			break
		}
	}
	if q == nil {
		// Distinguish a missing survey from a missing question.
		if s, err := rs.store.GetSurvey(ctx, surveyID); err != nil {
			return nil, fmt.Errorf("get survey: %w", err)
		} else if s == nil {
			return nil, ErrSurveyNotFound
		}
		return nil, ErrQuestionNotFound
	}
	if !q.AllowOptionAdd {
		return nil, ErrOptionAddDisabled
	}
	if _, err := rs.openFor(ctx, v, surveyID); err != nil {
		return nil, err
	}

	want := Normalize(label)
	for _, o := range q.Options {
		if Normalize(o.Label) == want {
			existing := o
			return &existing, nil
		}
	}

	opt := Option{
		ID:         rs.newID(),
		QuestionID: q.ID,
		Label:      label,
		CreatedBy:  v.AccountID,
		CreatedAt:  rs.now(),
	}
	if err := rs.store.AddOption(ctx, opt); err != nil {
		return nil, fmt.Errorf("add option: %w", err)
	}
	return &opt, nil
}
