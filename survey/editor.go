package survey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/kyudo-console/domain"
)

// Draft is the authored content of a survey as submitted by an administrator.
type Draft struct {
	Title            string
	Description      string
	OpensAt          *time.Time
	ClosesAt         *time.Time
	IsAnonymous      bool
	Questions        []DraftQuestion
	TargetGroups     [][]Condition
	TargetAccountIDs []string
}

// DraftQuestion is one authored question with its initial option labels.
type DraftQuestion struct {
	Prompt         string
	Type           QuestionType
	AllowOptionAdd bool
	Options        []string
}

// Validate checks the draft before anything is written.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return domain.Invalid("title is required")
	}
	if d.OpensAt != nil && d.ClosesAt != nil && d.ClosesAt.Before(*d.OpensAt) {
		return domain.Invalid("closesAt must not be before opensAt")
	}
	if len(d.Questions) == 0 {
		return domain.Invalid("at least one question is required")
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return domain.Invalidf("question %d: prompt is required", i+1)
		}
		if _, err := ParseQuestionType(string(q.Type)); err != nil {
			return domain.Invalidf("question %d: %v", i+1, err)
		}
		if len(q.Options) == 0 {
			return domain.Invalidf("question %d: at least one option is required", i+1)
		}
		seen := make(map[string]bool, len(q.Options))
		for _, label := range q.Options {
			key := Normalize(label)
			if key == "" {
				return domain.Invalidf("question %d: option label is required", i+1)
			}
			if seen[key] {
				return domain.Invalidf("question %d: duplicate option %q", i+1, strings.TrimSpace(label))
			}
			seen[key] = true
		}
	}
	for i, conds := range d.TargetGroups {
		if len(conds) == 0 {
			return domain.Invalidf("target group %d: at least one condition is required", i+1)
		}
		for _, c := range conds {
			if _, err := ParseField(string(c.Field)); err != nil {
				return domain.Invalidf("target group %d: %v", i+1, err)
			}
			if _, err := ParseOp(string(c.Op)); err != nil {
				return domain.Invalidf("target group %d: %v", i+1, err)
			}
			if strings.TrimSpace(c.Value) == "" {
				return domain.Invalidf("target group %d: condition value is required", i+1)
			}
		}
	}
	return nil
}

// =============================================================================
// EDITOR
// =============================================================================

// Editor authors surveys and moves them through their lifecycle.
type Editor struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewEditor creates an editor over the store.
func NewEditor(store Store) *Editor {
	return &Editor{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithClock overrides the time source.
func (e *Editor) WithClock(now func() time.Time) *Editor {
	e.now = now
	return e
}

// Create stores a new draft survey authored by createdBy.
func (e *Editor) Create(ctx context.Context, createdBy string, d Draft) (*Survey, error) {
	if err := e.check(ctx, d); err != nil {
		return nil, err
	}
	now := e.now()
	tree := e.build(Survey{
		ID:        e.newID(),
		Status:    StatusDraft,
		CreatedBy: createdBy,
		CreatedAt: now,
	}, d, createdBy, now)
	if err := e.store.CreateSurvey(ctx, tree); err != nil {
		return nil, fmt.Errorf("create survey: %w", err)
	}
	return &tree.Survey, nil
}

// Replace rebuilds a draft survey from d. Questions, options, and targeting
// are recreated from scratch.
func (e *Editor) Replace(ctx context.Context, editorID, id string, d Draft) (*Survey, error) {
	current, err := e.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	if current == nil {
		return nil, ErrSurveyNotFound
	}
	if current.Status != StatusDraft {
		return nil, ErrNotDraft
	}
	if err := e.check(ctx, d); err != nil {
		return nil, err
	}
	now := e.now()
	tree := e.build(Survey{
		ID:        current.ID,
		Status:    StatusDraft,
		CreatedBy: current.CreatedBy,
		CreatedAt: current.CreatedAt,
	}, d, editorID, now)
	if err := e.store.ReplaceSurvey(ctx, tree); err != nil {
		if domain.IsClientError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("replace survey: %w", err)
	}
	return &tree.Survey, nil
}

// Delete removes the surveys and everything attached to them.
func (e *Editor) Delete(ctx context.Context, ids []string) (int, error) {
	ids = appendUnique(nil, ids...)
	if len(ids) == 0 {
		return 0, domain.Invalid("ids are required")
	}
	n, err := e.store.DeleteSurveys(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete surveys: %w", err)
	}
	return n, nil
}

// CanTransition reports whether a survey may move from one status to another.
// Published surveys never return to draft.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusDraft && to == StatusOpen:
		return true
	case from == StatusOpen && to == StatusClosed:
		return true
	case from == StatusClosed && to == StatusOpen:
		return true
	}
	return false
}

// SetStatus moves a survey to a new lifecycle status.
func (e *Editor) SetStatus(ctx context.Context, id string, to Status) (*Survey, error) {
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	s, err := e.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	if s == nil {
		return nil, ErrSurveyNotFound
	}
	if !CanTransition(s.Status, to) {
		return nil, ErrBadTransition
	}
	now := e.now()
	ok, err := e.store.UpdateSurveyStatus(ctx, id, s.Status, to, now)
	if err != nil {
		return nil, fmt.Errorf("update survey status: %w", err)
	}
	if !ok {
		// Someone else moved it first.
		return nil, ErrBadTransition
	}
	s.Status = to
	s.UpdatedAt = now
	return s, nil
}

func (e *Editor) check(ctx context.Context, d Draft) error {
	if err := d.Validate(); err != nil {
		return err
	}
	ids := appendUnique(nil, d.TargetAccountIDs...)
	if len(ids) == 0 {
		return nil
	}
	known, err := e.store.ListRespondentIdentities(ctx, ids)
	if err != nil {
		return fmt.Errorf("check target accounts: %w", err)
	}
	if len(known) != len(ids) {
		return domain.Invalid("unknown target account")
	}
	return nil
}

// build assigns ids and positions to the authored content.
func (e *Editor) build(s Survey, d Draft, author string, now time.Time) Tree {
	s.Title = strings.TrimSpace(d.Title)
	s.Description = strings.TrimSpace(d.Description)
	s.OpensAt = d.OpensAt
	s.ClosesAt = d.ClosesAt
	s.IsAnonymous = d.IsAnonymous
	s.UpdatedAt = now

	tree := Tree{Survey: s, TargetAccountIDs: appendUnique(nil, d.TargetAccountIDs...)}
	for i, dq := range d.Questions {
		q := Question{
			ID:             e.newID(),
			SurveyID:       s.ID,
			Prompt:         strings.TrimSpace(dq.Prompt),
			Type:           dq.Type,
			AllowOptionAdd: dq.AllowOptionAdd,
			Position:       i,
		}
		for _, label := range dq.Options {
			q.Options = append(q.Options, Option{
				ID:         e.newID(),
				QuestionID: q.ID,
				Label:      strings.TrimSpace(label),
				CreatedBy:  author,
				CreatedAt:  now,
			})
		}
		tree.Questions = append(tree.Questions, q)
	}
	for i, conds := range d.TargetGroups {
		g := TargetGroup{ID: e.newID(), Position: i}
		for _, c := range conds {
			g.Conditions = append(g.Conditions, Condition{
				Field: c.Field,
				Op:    c.Op,
				Value: strings.TrimSpace(c.Value),
			})
		}
		tree.TargetGroups = append(tree.TargetGroups, g)
	}
	return tree
}
