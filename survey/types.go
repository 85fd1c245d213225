/*
Package survey implements member surveys with rule-based targeting.

PURPOSE:
  A survey is authored as a draft, opened for responses, then closed. Who may
  answer is decided either by an explicit list of accounts or by target
  groups: each group ANDs field conditions over the member profile, and the
  groups are ORed together. Aggregated results never reveal respondent
  identities for anonymous surveys.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status / QuestionType / Field / Op / Availability: closed enums
  - Survey, Question, Option: the authored structure
  - TargetGroup, Condition: eligibility rules
  - ProfileFields: the profile projection the rules are evaluated against

SEE ALSO:
  - conditions.go: Condition evaluator and group resolver
  - eligibility.go: Eligible population, per-viewer state, aggregates
  - response.go: Answer validation and submission
  - editor.go: Draft authoring and lifecycle transitions
*/
package survey

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// ENUMS
// =============================================================================

// Status is the persisted lifecycle state of a survey.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusOpen, StatusClosed:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown survey status %q", s)
}

// QuestionType controls answer cardinality.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
)

// ParseQuestionType validates a question type string.
func ParseQuestionType(s string) (QuestionType, error) {
	switch QuestionType(s) {
	case QuestionSingle, QuestionMultiple:
		return QuestionType(s), nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// Field is a profile attribute a target condition can test.
type Field string

const (
	FieldDisplayName   Field = "display_name"
	FieldStudentNumber Field = "student_number"
	FieldGeneration    Field = "generation"
	FieldGender        Field = "gender"
	FieldDepartment    Field = "department"
	FieldRyuha         Field = "ryuha"
	FieldPosition      Field = "position"
)

// Fields lists every targetable field.
var Fields = []Field{
	FieldDisplayName,
	FieldStudentNumber,
	FieldGeneration,
	FieldGender,
	FieldDepartment,
	FieldRyuha,
	FieldPosition,
}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown target field %q", s)
}

// Op is a condition operator.
type Op string

const (
	// OpILike is case-insensitive substring containment.
	OpILike Op = "ilike"
	// OpEq is case-insensitive exact equality.
	OpEq Op = "eq"
)

// ParseOp validates an operator string.
func ParseOp(s string) (Op, error) {
	switch Op(s) {
	case OpILike, OpEq:
		return Op(s), nil
	}
	return "", fmt.Errorf("unknown target operator %q", s)
}

// Availability is the time-window state of a survey, independent of Status.
type Availability string

const (
	AvailabilityUpcoming Availability = "upcoming"
	AvailabilityOpen     Availability = "open"
	AvailabilityClosed   Availability = "closed"
)

// =============================================================================
// SURVEY STRUCTURE
// =============================================================================

// Survey is the survey header.
type Survey struct {
	ID          string
	Title       string
	Description string
	Status      Status
	OpensAt     *time.Time
	ClosesAt    *time.Time
	IsAnonymous bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Question belongs to one survey. Options are ordered by insertion.
type Question struct {
	ID             string
	SurveyID       string
	Prompt         string
	Type           QuestionType
	AllowOptionAdd bool
	Position       int
	Options        []Option
}

// HasOption reports whether optionID currently belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// Option is one selectable answer of a question.
type Option struct {
	ID         string
	QuestionID string
	Label      string
	CreatedBy  string
	CreatedAt  time.Time
}

// Tree is a survey together with everything authored for it.
type Tree struct {
	Survey           Survey
	Questions        []Question
	TargetGroups     []TargetGroup
	TargetAccountIDs []string
}

// =============================================================================
// TARGETING
// =============================================================================

// TargetGroup is one OR branch of the eligibility rule.
type TargetGroup struct {
	ID         string
	Position   int
	Conditions []Condition
}

// Condition is a single field rule inside a group.
type Condition struct {
	Field Field
	Op    Op
	Value string
}

// ProfileFields is the profile projection conditions are evaluated against.
type ProfileFields struct {
	AccountID     string
	DisplayName   string
	StudentNumber string
	Generation    string
	Gender        string
	Department    string
	Ryuha         string
	Position      string
}

// Value returns the raw value of f.
func (p ProfileFields) Value(f Field) string {
	switch f {
	case FieldDisplayName:
		return p.DisplayName
	case FieldStudentNumber:
		return p.StudentNumber
	case FieldGeneration:
		return p.Generation
	case FieldGender:
		return p.Gender
	case FieldDepartment:
		return p.Department
	case FieldRyuha:
		return p.Ryuha
	case FieldPosition:
		return p.Position
	}
	return ""
}

// =============================================================================
// RESPONSES
// =============================================================================

// Response is the single response of an account to a survey.
type Response struct {
	ID          string
	SurveyID    string
	AccountID   string
	SubmittedAt time.Time
	UpdatedAt   time.Time
	// Answers maps question id to the selected option ids.
	Answers map[string][]string
}

// AnswerRow is one stored (account, question, option) selection.
type AnswerRow struct {
	AccountID  string
	QuestionID string
	OptionID   string
}

// Respondent is the display identity of an account.
type Respondent struct {
	AccountID     string
	DisplayName   string
	StudentNumber string
	Generation    string
}

// AccountSet is a set of account ids.
type AccountSet map[string]struct{}

// NewAccountSet builds a set from ids.
func NewAccountSet(ids ...string) AccountSet {
	s := make(AccountSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s AccountSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s AccountSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
