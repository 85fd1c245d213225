/*
Package calendar holds the club's shared event calendar.

PURPOSE:
  Events occupy a closed time interval [StartsAt, EndsAt]. Listing is always
  done for a Range and returns every event overlapping it, so an event that
  started before the range or ends after it is still included.
*/
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/kyudo-console/domain"
)

// =============================================================================
// RANGE
// =============================================================================

// Range is a closed time interval [Start, End].
type Range struct {
	Start time.Time
	End   time.Time
}

// Validate rejects ranges that end before they start.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return domain.Invalid("start and end are required")
	}
	if r.End.Before(r.Start) {
		return domain.Invalid("end must not be before start")
	}
	return nil
}

// Overlaps reports whether the two ranges share at least one instant.
func (r Range) Overlaps(o Range) bool {
	return !r.Start.After(o.End) && !r.End.Before(o.Start)
}

// Month returns the calendar month containing t, in t's location.
func Month(t time.Time) Range {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Range{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is one calendar entry.
type Event struct {
	ID          string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool
	Color       string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Span returns the interval the event occupies.
func (e Event) Span() Range { return Range{Start: e.StartsAt, End: e.EndsAt} }

// EventInput is the editable part of an event.
type EventInput struct {
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool
	Color       string
}

var validate = validator.New()

// DefaultColor is used when an event has none.
const DefaultColor = "#3b82f6"

// Validate checks the input.
func (in EventInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Invalid("title is required")
	}
	if in.StartsAt.IsZero() || in.EndsAt.IsZero() {
		return domain.Invalid("startsAt and endsAt are required")
	}
	if in.EndsAt.Before(in.StartsAt) {
		return domain.Invalid("endsAt must not be before startsAt")
	}
	if in.Color != "" && validate.Var(in.Color, "hexcolor,len=7") != nil {
		return domain.Invalid("color must be #rrggbb")
	}
	return nil
}

// Store handles event persistence. GetEvent returns (nil, nil) when missing.
type Store interface {
	CreateEvent(ctx context.Context, e Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	UpdateEvent(ctx context.Context, e Event) error
	DeleteEvent(ctx context.Context, id string) (bool, error)
	// ListEvents returns events overlapping r ordered by start.
	ListEvents(ctx context.Context, r Range) ([]Event, error)
}

var ErrEventNotFound = domain.NotFound("event not found")

// Service implements calendar operations.
type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

// NewService creates a calendar service.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// List returns events overlapping r.
func (s *Service) List(ctx context.Context, r Range) ([]Event, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func normalizeInput(in EventInput) EventInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.StartsAt = in.StartsAt.UTC()
	in.EndsAt = in.EndsAt.UTC()
	if in.Color == "" {
		in.Color = DefaultColor
	}
	in.Color = strings.ToLower(in.Color)
	return in
}

// Create adds an event.
func (s *Service) Create(ctx context.Context, createdBy string, in EventInput) (*Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	in = normalizeInput(in)
	now := s.now()
	e := Event{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		StartsAt:    in.StartsAt,
		EndsAt:      in.EndsAt,
		AllDay:      in.AllDay,
		Color:       in.Color,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &e, nil
}

// Update replaces the editable fields of an event.
func (s *Service) Update(ctx context.Context, id string, in EventInput) (*Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if e == nil {
		return nil, ErrEventNotFound
	}
	in = normalizeInput(in)
	e.Title = in.Title
	e.Description = in.Description
	e.StartsAt = in.StartsAt
	e.EndsAt = in.EndsAt
	e.AllDay = in.AllDay
	e.Color = in.Color
	e.UpdatedAt = s.now()
	if err := s.store.UpdateEvent(ctx, *e); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return e, nil
}

// Delete removes an event.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.store.DeleteEvent(ctx, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if !ok {
		return ErrEventNotFound
	}
	return nil
}
