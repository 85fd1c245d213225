/*
Package billing implements the invoice approval workflow.

LIFECYCLE:
  pending  --Approve-->  approved  (approver and approval time recorded)
  approved --Revert-->   pending   (approver and approval time cleared)
  pending | approved --Delete--> gone

  Approve and Revert are conditional updates: ids that are not currently in
  the source status are skipped, and the caller learns how many rows actually
  changed. Approving an approved invoice is therefore a no-op, not an error.

VISIBILITY:
  Members see their own invoices. Invoice administrators see every invoice.
  Every successful Get leaves a "viewed" entry in the invoice log.
*/
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/domain"
)

// Status is the invoice state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// Invoice is a charge billed to one member.
type Invoice struct {
	ID          string
	AccountID   string
	Amount      decimal.Decimal
	BilledAt    time.Time
	Status      Status
	ApproverID  string
	ApprovedAt  *time.Time
	RequesterID string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewInvoice is the input of Create.
type NewInvoice struct {
	AccountID   string
	Amount      decimal.Decimal
	BilledAt    time.Time
	Title       string
	Description string
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status    Status
	AccountID string
}

// Store handles invoice persistence. GetInvoice returns (nil, nil) when the
// invoice does not exist.
type Store interface {
	CreateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoices(ctx context.Context, f ListFilter) ([]Invoice, error)
	// ApproveInvoices sets approver fields on rows still pending and
	// returns the ids it changed.
	ApproveInvoices(ctx context.Context, ids []string, approverID string, at time.Time) ([]string, error)
	// RevertInvoices clears approver fields on rows currently approved.
	RevertInvoices(ctx context.Context, ids []string, at time.Time) ([]string, error)
	DeleteInvoices(ctx context.Context, ids []string) ([]string, error)
	AccountExists(ctx context.Context, accountID string) (bool, error)
}

var (
	ErrInvoiceNotFound = domain.NotFound("invoice not found")
	ErrAmount          = domain.Invalid("amount must be greater than 0")
	ErrTitle           = domain.Invalid("title is required")
	ErrBilledAt        = domain.Invalid("billedAt is required")
	ErrUnknownAccount  = domain.Invalid("account does not exist")
	ErrNoIDs           = domain.Invalid("ids are required")
)

// =============================================================================
// SERVICE
// =============================================================================

// Service implements invoice operations.
type Service struct {
	store Store
	audit audit.Recorder
	now   func() time.Time
	newID func() string
}

// NewService creates an invoice service. A nil recorder discards audit
// entries.
func NewService(store Store, rec audit.Recorder) *Service {
	if rec == nil {
		rec = audit.Discard
	}
	return &Service{
		store: store,
		audit: rec,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

func (s *Service) record(op auth.Identity, invoiceID, action, detail string) {
	s.audit.Record(audit.Entry{
		Log:        audit.LogInvoice,
		OperatorID: op.AccountID,
		SubjectID:  invoiceID,
		Action:     action,
		Detail:     detail,
		At:         s.now(),
	})
}

// Create bills a member. The invoice starts pending.
func (s *Service) Create(ctx context.Context, op auth.Identity, in NewInvoice) (*Invoice, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrAmount
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitle
	}
	if in.BilledAt.IsZero() {
		return nil, ErrBilledAt
	}
	ok, err := s.store.AccountExists(ctx, in.AccountID)
	if err != nil {
		return nil, fmt.Errorf("check account: %w", err)
	}
	if !ok {
		return nil, ErrUnknownAccount
	}

	now := s.now()
	inv := Invoice{
		ID:          s.newID(),
		AccountID:   in.AccountID,
		Amount:      in.Amount,
		BilledAt:    in.BilledAt.UTC(),
		Status:      StatusPending,
		RequesterID: op.AccountID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	s.record(op, inv.ID, "created", fmt.Sprintf("amount=%s account=%s", inv.Amount.String(), inv.AccountID))
	return &inv, nil
}

// List returns invoices visible to the viewer. Non-administrators only ever
// see their own, whatever the filter says.
func (s *Service) List(ctx context.Context, viewer auth.Identity, f ListFilter) ([]Invoice, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, domain.Invalid(err.Error())
		}
	}
	if !auth.HasCapability(viewer, auth.PermInvoiceAdmin) {
		f.AccountID = viewer.AccountID
	}
	list, err := s.store.ListInvoices(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return list, nil
}

// Get returns one invoice and logs the view.
func (s *Service) Get(ctx context.Context, viewer auth.Identity, id string) (*Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}
	if inv.AccountID != viewer.AccountID && !auth.HasCapability(viewer, auth.PermInvoiceAdmin) {
		return nil, domain.Forbidden("forbidden")
	}
	s.record(viewer, inv.ID, "viewed", "")
	return inv, nil
}

// Approve approves the pending invoices among ids and returns how many
// changed.
func (s *Service) Approve(ctx context.Context, op auth.Identity, ids []string) (int, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	changed, err := s.store.ApproveInvoices(ctx, ids, op.AccountID, s.now())
	if err != nil {
		return 0, fmt.Errorf("approve invoices: %w", err)
	}
	for _, id := range changed {
		s.record(op, id, "approved", "")
	}
	return len(changed), nil
}

// Revert returns approved invoices among ids to pending.
func (s *Service) Revert(ctx context.Context, op auth.Identity, ids []string) (int, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	changed, err := s.store.RevertInvoices(ctx, ids, s.now())
	if err != nil {
		return 0, fmt.Errorf("revert invoices: %w", err)
	}
	for _, id := range changed {
		s.record(op, id, "reverted", "")
	}
	return len(changed), nil
}

// Delete removes invoices and returns how many existed.
func (s *Service) Delete(ctx context.Context, op auth.Identity, ids []string) (int, error) {
	ids = cleanIDs(ids)
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}
	changed, err := s.store.DeleteInvoices(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete invoices: %w", err)
	}
	for _, id := range changed {
		s.record(op, id, "deleted", "")
	}
	return len(changed), nil
}

func cleanIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
