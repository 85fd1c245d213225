/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain packages from the wire contract (camelCase JSON, RFC 3339
  timestamps, decimal amounts as strings).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required, lengths, enums). Business rules stay in the domain packages,
  so a request that passes here can still be rejected with a 400 there.

SEE ALSO:
  - handlers.go: decode() runs the validator
  - convert.go: domain -> DTO mapping
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges a write without a payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// CountResponse reports how many rows a bulk operation changed.
type CountResponse struct {
	Updated int `json:"updated"`
}

// DeletedResponse reports how many rows a bulk delete removed.
type DeletedResponse struct {
	Deleted int `json:"deleted"`
}

// IDsRequest addresses several rows at once.
type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// =============================================================================
// SESSION
// =============================================================================

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionDTO is returned on login.
type SessionDTO struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	Me        MeDTO  `json:"me"`
}

// MeDTO describes the caller.
type MeDTO struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	Permissions []string    `json:"permissions"`
	Profile     *ProfileDTO `json:"profile,omitempty"`
}

// ChangePasswordRequest is the body of POST /me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// =============================================================================
// PROFILES & ACCOUNTS
// =============================================================================

// ProfileDTO is a member profile. Restricted fields are empty when the
// viewer may not see them.
type ProfileDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Generation  string `json:"generation"`
	Gender      string `json:"gender"`
	Department  string `json:"department"`
	Ryuha       string `json:"ryuha"`
	Position    string `json:"position"`
	PublicNote  string `json:"publicNote"`

	StudentNumber  string `json:"studentNumber,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Address        string `json:"address,omitempty"`
	RestrictedNote string `json:"restrictedNote,omitempty"`

	UpdatedAt string `json:"updatedAt"`
}

// UpdateProfileRequest is a partial profile update; absent fields are kept.
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=100"`
	Generation  *string `json:"generation" validate:"omitempty,max=20"`
	Gender      *string `json:"gender"`
	Department  *string `json:"department" validate:"omitempty,max=100"`
	Ryuha       *string `json:"ryuha" validate:"omitempty,max=100"`
	Position    *string `json:"position" validate:"omitempty,max=100"`
	PublicNote  *string `json:"publicNote" validate:"omitempty,max=2000"`

	StudentNumber  *string `json:"studentNumber" validate:"omitempty,max=40"`
	Phone          *string `json:"phone" validate:"omitempty,max=40"`
	Address        *string `json:"address" validate:"omitempty,max=300"`
	RestrictedNote *string `json:"restrictedNote" validate:"omitempty,max=2000"`
}

// CreateAccountRequest is the body of POST /admin/accounts.
type CreateAccountRequest struct {
	Email         string   `json:"email" validate:"required,email"`
	Password      string   `json:"password" validate:"required,min=8,max=72"`
	DisplayName   string   `json:"displayName" validate:"required,max=100"`
	Role          string   `json:"role" validate:"omitempty,oneof=admin user"`
	Permissions   []string `json:"permissions" validate:"dive,oneof=member_admin invoice_admin bow_admin calendar_admin survey_admin"`
	Generation    string   `json:"generation" validate:"max=20"`
	StudentNumber string   `json:"studentNumber" validate:"max=40"`
	Gender        string   `json:"gender" validate:"omitempty,oneof=male female"`
	Department    string   `json:"department" validate:"max=100"`
}

// SetPermissionsRequest replaces an account's sub-permissions.
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,oneof=member_admin invoice_admin bow_admin calendar_admin survey_admin"`
}

// PermissionsDTO is the resulting permission set.
type PermissionsDTO struct {
	AccountID   string   `json:"accountId"`
	Permissions []string `json:"permissions"`
}

// AuditEntryDTO is one account or invoice log entry.
type AuditEntryDTO struct {
	ID         string `json:"id"`
	OperatorID string `json:"operatorId,omitempty"`
	SubjectID  string `json:"subjectId,omitempty"`
	Action     string `json:"action"`
	Detail     string `json:"detail,omitempty"`
	At         string `json:"at"`
}

// =============================================================================
// SURVEYS
// =============================================================================

// SurveyDTO is the survey header.
type SurveyDTO struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	OpensAt     *string `json:"opensAt"`
	ClosesAt    *string `json:"closesAt"`
	IsAnonymous bool    `json:"isAnonymous"`
	CreatedBy   string  `json:"createdBy"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// SurveySummaryDTO is a survey annotated for the viewer.
type SurveySummaryDTO struct {
	SurveyDTO
	Eligible         bool   `json:"eligible"`
	Responded        bool   `json:"responded"`
	Availability     string `json:"availability"`
	CanAnswer        bool   `json:"canAnswer"`
	RequiresResponse bool   `json:"requiresResponse"`
}

// OptionDTO is one answer option.
type OptionDTO struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	CreatedBy string `json:"createdBy"`
}

// QuestionDTO is one question with its options in insertion order.
type QuestionDTO struct {
	ID             string      `json:"id"`
	Prompt         string      `json:"prompt"`
	Type           string      `json:"type"`
	AllowOptionAdd bool        `json:"allowOptionAdd"`
	Position       int         `json:"position"`
	Options        []OptionDTO `json:"options"`
}

// RespondentDTO is the display identity of an account.
type RespondentDTO struct {
	AccountID     string `json:"accountId"`
	DisplayName   string `json:"displayName"`
	StudentNumber string `json:"studentNumber,omitempty"`
	Generation    string `json:"generation,omitempty"`
}

// ResultsDTO holds the aggregates over the eligible population.
type ResultsDTO struct {
	RespondedCount      int                        `json:"respondedCount"`
	EligibleCount       int                        `json:"eligibleCount"`
	ResponseRate        float64                    `json:"responseRate"`
	CountsByOption      map[string]int             `json:"countsByOption"`
	RespondentsByOption map[string][]RespondentDTO `json:"respondentsByOption,omitempty"`
	Unresponded         []RespondentDTO            `json:"unresponded,omitempty"`
}

// SurveyDetailDTO is the full survey view for one viewer.
type SurveyDetailDTO struct {
	Survey       SurveyDTO           `json:"survey"`
	Questions    []QuestionDTO       `json:"questions"`
	Eligible     bool                `json:"eligible"`
	Availability string              `json:"availability"`
	CanAnswer    bool                `json:"canAnswer"`
	MyAnswers    map[string][]string `json:"myAnswers"`
	RespondedAt  *string             `json:"respondedAt"`
	Results      ResultsDTO          `json:"results"`
}

// AnswerRequest selects options of one question.
type AnswerRequest struct {
	QuestionID string   `json:"questionId" validate:"required"`
	OptionIDs  []string `json:"optionIds"`
}

// SubmitResponseRequest is the body of POST /surveys/{id}/response.
type SubmitResponseRequest struct {
	Answers []AnswerRequest `json:"answers" validate:"required,dive"`
}

// AppendOptionRequest is the body of POST /surveys/{id}/option.
type AppendOptionRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Label      string `json:"label" validate:"required"`
}

// ConditionRequest is one target condition.
type ConditionRequest struct {
	Field string `json:"field" validate:"required"`
	Op    string `json:"op" validate:"required,oneof=ilike eq"`
	Value string `json:"value" validate:"required"`
}

// DraftQuestionRequest is one authored question.
type DraftQuestionRequest struct {
	Prompt         string   `json:"prompt" validate:"required,max=500"`
	Type           string   `json:"type" validate:"required,oneof=single multiple"`
	AllowOptionAdd bool     `json:"allowOptionAdd"`
	Options        []string `json:"options" validate:"required,min=1"`
}

// SurveyDraftRequest is the body of POST /admin/surveys and
// POST /admin/surveys/{id}.
type SurveyDraftRequest struct {
	Title            string                 `json:"title" validate:"required,max=200"`
	Description      string                 `json:"description" validate:"max=5000"`
	OpensAt          *time.Time             `json:"opensAt"`
	ClosesAt         *time.Time             `json:"closesAt"`
	IsAnonymous      bool                   `json:"isAnonymous"`
	Questions        []DraftQuestionRequest `json:"questions" validate:"required,min=1,dive"`
	TargetGroups     [][]ConditionRequest   `json:"targetGroups" validate:"dive,min=1,dive"`
	TargetAccountIDs []string               `json:"targetAccountIds" validate:"dive,required"`
}

// SetStatusRequest is the body of POST /admin/surveys/{id}/status.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft open closed"`
}

// AccountRateDTO is one row of the analytics rollup.
type AccountRateDTO struct {
	RespondentDTO
	EligibleCount  int     `json:"eligibleCount"`
	RespondedCount int     `json:"respondedCount"`
	ResponseRate   float64 `json:"responseRate"`
}

// =============================================================================
// INVOICES
// =============================================================================

// InvoiceDTO is one invoice.
type InvoiceDTO struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	Amount      decimal.Decimal `json:"amount"`
	BilledAt    string          `json:"billedAt"`
	Status      string          `json:"status"`
	ApproverID  string          `json:"approverId,omitempty"`
	ApprovedAt  *string         `json:"approvedAt"`
	RequesterID string          `json:"requesterId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"createdAt"`
}

// CreateInvoiceRequest is the body of POST /admin/invoices.
type CreateInvoiceRequest struct {
	AccountID   string          `json:"accountId" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	BilledAt    time.Time       `json:"billedAt" validate:"required"`
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
}

// =============================================================================
// BOWS
// =============================================================================

// BowDTO is one bow with its current borrower.
type BowDTO struct {
	ID                string          `json:"id"`
	BowNumber         string          `json:"bowNumber"`
	Name              string          `json:"name"`
	Strength          decimal.Decimal `json:"strength"`
	Length            string          `json:"length"`
	Note              string          `json:"note"`
	Available         bool            `json:"available"`
	BorrowerProfileID string          `json:"borrowerProfileId,omitempty"`
	BorrowerName      string          `json:"borrowerName,omitempty"`
}

// BowRequest is the body of bow create/update.
type BowRequest struct {
	BowNumber string          `json:"bowNumber" validate:"required,max=40"`
	Name      string          `json:"name" validate:"required,max=100"`
	Strength  decimal.Decimal `json:"strength"`
	Length    string          `json:"length" validate:"required"`
	Note      string          `json:"note" validate:"max=2000"`
}

// BorrowRequest optionally names the borrower (bow administrators only).
type BorrowRequest struct {
	BorrowerProfileID string `json:"borrowerProfileId"`
}

// LoanDTO is one loan of a bow.
type LoanDTO struct {
	ID                string  `json:"id"`
	BowID             string  `json:"bowId"`
	BorrowerProfileID string  `json:"borrowerProfileId"`
	BorrowerName      string  `json:"borrowerName"`
	OperatorID        string  `json:"operatorId"`
	BorrowedAt        string  `json:"borrowedAt"`
	ReturnedAt        *string `json:"returnedAt"`
}

// =============================================================================
// EVENTS
// =============================================================================

// EventDTO is one calendar event.
type EventDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartsAt    string `json:"startsAt"`
	EndsAt      string `json:"endsAt"`
	AllDay      bool   `json:"allDay"`
	Color       string `json:"color"`
	CreatedBy   string `json:"createdBy"`
}

// EventRequest is the body of event create/update.
type EventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	StartsAt    time.Time `json:"startsAt" validate:"required"`
	EndsAt      time.Time `json:"endsAt" validate:"required,gtefield=StartsAt"`
	AllDay      bool      `json:"allDay"`
	Color       string    `json:"color" validate:"omitempty,hexcolor,len=7"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required"`
}
