package survey

import (
	"context"
	"time"
)

// ListFilter narrows ListSurveys.
type ListFilter struct {
	IncludeDraft bool
	// CreatedFrom/CreatedTo bound created_at inclusively when set.
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Store handles persistence of surveys, targeting, and responses.
// Lookups of a single missing row return (nil, nil).
type Store interface {
	GetSurvey(ctx context.Context, id string) (*Survey, error)
	ListSurveys(ctx context.Context, f ListFilter) ([]Survey, error)
	// ListQuestions returns questions ordered by position, each with its
	// options in insertion order.
	ListQuestions(ctx context.Context, surveyID string) ([]Question, error)
	ListTargetGroups(ctx context.Context, surveyID string) ([]TargetGroup, error)
	ListExplicitTargets(ctx context.Context, surveyID string) ([]string, error)

	// ResolveAccountIDs evaluates the groups over every stored profile and
	// returns the union of accounts matching at least one group. It must
	// agree with MatchesAnyGroup; empty groups return every profile.
	ResolveAccountIDs(ctx context.Context, groups []TargetGroup) ([]string, error)
	ListAllAccountIDs(ctx context.Context) ([]string, error)
	GetProfileFields(ctx context.Context, accountID string) (*ProfileFields, error)
	ListRespondentIdentities(ctx context.Context, accountIDs []string) ([]Respondent, error)

	GetResponse(ctx context.Context, surveyID, accountID string) (*Response, error)
	ListRespondents(ctx context.Context, surveyID string) ([]string, error)
	ListAnswers(ctx context.Context, surveyID string) ([]AnswerRow, error)
	RespondedSurveyIDs(ctx context.Context, accountID string) ([]string, error)

	// UpsertResponse atomically creates or replaces the (survey, account)
	// response and all of its answers.
	UpsertResponse(ctx context.Context, surveyID, accountID string, answers map[string][]string, at time.Time) (string, error)
	AddOption(ctx context.Context, opt Option) error

	CreateSurvey(ctx context.Context, tree Tree) error
	// ReplaceSurvey atomically replaces header, questions, options, and
	// targeting of a draft survey, discarding any stored responses. It
	// returns ErrNotDraft if the survey left draft in the meantime.
	ReplaceSurvey(ctx context.Context, tree Tree) error
	DeleteSurveys(ctx context.Context, ids []string) (int, error)
	// UpdateSurveyStatus sets the status only if it currently equals from.
	UpdateSurveyStatus(ctx context.Context, id string, from, to Status, at time.Time) (bool, error)
}
