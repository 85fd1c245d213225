/*
Package equipment tracks the club's bows and who has borrowed them.

PURPOSE:
  A bow is either available or lent to exactly one member. Each lending is
  recorded as a loan; returning the bow closes the most recent open loan.

INVARIANTS:
  - At most one open loan per bow (enforced by the store, not by a
    check-then-act sequence in this package)
  - Bow.BorrowerProfileID is set iff the bow has an open loan
  - A borrowed bow cannot be deleted

SEE ALSO:
  - store/sqlite/equipment.go: transactional borrow/return
*/
package equipment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/domain"
)

// Length is the standard bow length class.
type Length string

const (
	LengthSansunTsumari Length = "sansun_tsumari"
	LengthNamisun       Length = "namisun"
	LengthNisunNobi     Length = "nisun_nobi"
	LengthYonsunNobi    Length = "yonsun_nobi"
	LengthRokusunNobi   Length = "rokusun_nobi"
)

// Lengths lists every length from shortest to longest.
var Lengths = []Length{
	LengthSansunTsumari,
	LengthNamisun,
	LengthNisunNobi,
	LengthYonsunNobi,
	LengthRokusunNobi,
}

// ParseLength validates a length string.
func ParseLength(s string) (Length, error) {
	for _, l := range Lengths {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown bow length %q", s)
}

// Bow is one piece of club equipment.
type Bow struct {
	ID        string
	BowNumber string
	Name      string
	// Strength is the draw weight in kilograms.
	Strength          decimal.Decimal
	Length            Length
	Note              string
	BorrowerProfileID string
	BorrowerName      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available reports whether nobody currently holds the bow.
func (b Bow) Available() bool { return b.BorrowerProfileID == "" }

// BowInput is the editable part of a bow.
type BowInput struct {
	BowNumber string
	Name      string
	Strength  decimal.Decimal
	Length    Length
	Note      string
}

// Validate checks the input.
func (in BowInput) Validate() error {
	if strings.TrimSpace(in.BowNumber) == "" {
		return domain.Invalid("bowNumber is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name is required")
	}
	if in.Strength.IsNegative() {
		return domain.Invalid("strength must not be negative")
	}
	if _, err := ParseLength(string(in.Length)); err != nil {
		return domain.Invalid(err.Error())
	}
	return nil
}

// Loan is one lending of a bow. ReturnedAt is nil while the loan is open.
type Loan struct {
	ID                string
	BowID             string
	BorrowerProfileID string
	BorrowerName      string
	OperatorID        string
	BorrowedAt        time.Time
	ReturnedAt        *time.Time
}

// ListFilter narrows ListBows.
type ListFilter struct {
	// Available, when set, keeps only available (true) or lent (false) bows.
	Available *bool
}

// Store handles bow persistence. GetBow returns (nil, nil) when missing.
type Store interface {
	CreateBow(ctx context.Context, b Bow) error
	GetBow(ctx context.Context, id string) (*Bow, error)
	ListBows(ctx context.Context, f ListFilter) ([]Bow, error)
	UpdateBow(ctx context.Context, b Bow) error
	// DeleteBow removes an available bow. It returns ErrBorrowedDelete when
	// the bow is lent and ErrBowNotFound when it does not exist.
	DeleteBow(ctx context.Context, id string) error
	// BorrowBow marks the bow lent and opens the loan atomically. It returns
	// ErrAlreadyBorrowed if the bow is lent or has an open loan.
	BorrowBow(ctx context.Context, loan Loan) error
	// ReturnBow closes the most recent open loan and clears the borrower
	// atomically. It returns ErrNoOpenLoan if there is none.
	ReturnBow(ctx context.Context, bowID string, at time.Time) (*Loan, error)
	ListLoans(ctx context.Context, bowID string) ([]Loan, error)
	ProfileExists(ctx context.Context, profileID string) (bool, error)
}

var (
	ErrBowNotFound     = domain.NotFound("bow not found")
	ErrAlreadyBorrowed = domain.Invalid("bow already borrowed")
	ErrNoOpenLoan      = domain.NotFound("open loan not found")
	ErrBorrowedDelete  = domain.Invalid("a borrowed bow cannot be deleted")
	ErrUnknownBorrower = domain.Invalid("borrower does not exist")
)

// =============================================================================
// SERVICE
// =============================================================================

// Service implements bow operations.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService creates a bow service.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// List returns bows ordered by bow number.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Bow, error) {
	bows, err := s.store.ListBows(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bows: %w", err)
	}
	return bows, nil
}

// Create registers a bow.
func (s *Service) Create(ctx context.Context, in BowInput) (*Bow, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	b := Bow{
		ID:        s.newID(),
		BowNumber: strings.TrimSpace(in.BowNumber),
		Name:      strings.TrimSpace(in.Name),
		Strength:  in.Strength,
		Length:    in.Length,
		Note:      strings.TrimSpace(in.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateBow(ctx, b); err != nil {
		return nil, fmt.Errorf("create bow: %w", err)
	}
	return &b, nil
}

// Update replaces the editable fields of a bow. Loan state is untouched.
func (s *Service) Update(ctx context.Context, id string, in BowInput) (*Bow, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b, err := s.store.GetBow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get bow: %w", err)
	}
	if b == nil {
		return nil, ErrBowNotFound
	}
	b.BowNumber = strings.TrimSpace(in.BowNumber)
	b.Name = strings.TrimSpace(in.Name)
	b.Strength = in.Strength
	b.Length = in.Length
	b.Note = strings.TrimSpace(in.Note)
	b.UpdatedAt = s.now()
	if err := s.store.UpdateBow(ctx, *b); err != nil {
		return nil, fmt.Errorf("update bow: %w", err)
	}
	return b, nil
}

// Delete removes an available bow.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteBow(ctx, id); err != nil {
		if domain.IsClientError(err) || domain.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("delete bow: %w", err)
	}
	return nil
}

// Borrow lends the bow. Members borrow for themselves; bow administrators may
// name any borrower.
func (s *Service) Borrow(ctx context.Context, viewer auth.Identity, bowID, borrowerID string) (*Loan, error) {
	if borrowerID == "" {
		borrowerID = viewer.AccountID
	}
	if borrowerID != viewer.AccountID {
		if !auth.HasCapability(viewer, auth.PermBowAdmin) {
			return nil, domain.Forbidden("forbidden")
		}
		ok, err := s.store.ProfileExists(ctx, borrowerID)
		if err != nil {
			return nil, fmt.Errorf("check borrower: %w", err)
		}
		if !ok {
			return nil, ErrUnknownBorrower
		}
	}

	b, err := s.store.GetBow(ctx, bowID)
	if err != nil {
		return nil, fmt.Errorf("get bow: %w", err)
	}
	if b == nil {
		return nil, ErrBowNotFound
	}
	if !b.Available() {
		return nil, ErrAlreadyBorrowed
	}

	loan := Loan{
		ID:                s.newID(),
		BowID:             bowID,
		BorrowerProfileID: borrowerID,
		OperatorID:        viewer.AccountID,
		BorrowedAt:        s.now(),
	}
	if err := s.store.BorrowBow(ctx, loan); err != nil {
		if domain.IsClientError(err) || domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("borrow bow: %w", err)
	}
	return &loan, nil
}

// Return closes the open loan. Only the borrower or a bow administrator may
// return a bow.
func (s *Service) Return(ctx context.Context, viewer auth.Identity, bowID string) (*Loan, error) {
	b, err := s.store.GetBow(ctx, bowID)
	if err != nil {
		return nil, fmt.Errorf("get bow: %w", err)
	}
	if b == nil {
		return nil, ErrBowNotFound
	}
	if b.BorrowerProfileID != "" && b.BorrowerProfileID != viewer.AccountID &&
		!auth.HasCapability(viewer, auth.PermBowAdmin) {
		return nil, domain.Forbidden("forbidden")
	}
	loan, err := s.store.ReturnBow(ctx, bowID, s.now())
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("return bow: %w", err)
	}
	return loan, nil
}

// Loans returns the loan history of a bow, newest first.
func (s *Service) Loans(ctx context.Context, bowID string) ([]Loan, error) {
	b, err := s.store.GetBow(ctx, bowID)
	if err != nil {
		return nil, fmt.Errorf("get bow: %w", err)
	}
	if b == nil {
		return nil, ErrBowNotFound
	}
	loans, err := s.store.ListLoans(ctx, bowID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}
