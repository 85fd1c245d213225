package survey

import "github.com/warp/kyudo-console/domain"

var (
	ErrSurveyNotFound   = domain.NotFound("survey not found")
	ErrQuestionNotFound = domain.NotFound("question not found")
	ErrDraftHidden      = domain.Forbidden("survey is not published")
	ErrNotEligible      = domain.Forbidden("not eligible")

	ErrNotOpen           = domain.Invalid("survey is not open")
	ErrIncomplete        = domain.Invalid("all questions must be answered")
	ErrSingleChoice      = domain.Invalid("only one option may be selected")
	ErrInvalidOption     = domain.Invalid("invalid option")
	ErrInvalidQuestion   = domain.Invalid("invalid question")
	ErrOptionAddDisabled = domain.Invalid("adding options is not allowed for this question")
	ErrNotDraft          = domain.Invalid("only draft surveys can be edited")
	ErrBadTransition     = domain.Invalid("invalid status transition")
	ErrInvalidRange      = domain.Invalid("start must not be after end")
	ErrEmptyLabel        = domain.Invalid("label is required")
	ErrLabelTooLong      = domain.Invalid("label is too long")
)
