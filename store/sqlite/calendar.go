package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/kyudo-console/calendar"
)

// =============================================================================
// EVENTS (calendar.Store)
// =============================================================================

const eventColumns = `id, title, COALESCE(description, ''), starts_at, ends_at, all_day, color,
	created_by, created_at, updated_at`

func scanEvent(row interface{ Scan(dest ...any) error }) (calendar.Event, error) {
	var e calendar.Event
	var startsAt, endsAt, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.Title, &e.Description, &startsAt, &endsAt, &e.AllDay, &e.Color,
		&e.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return e, err
	}
	e.StartsAt = parseTime(startsAt)
	e.EndsAt = parseTime(endsAt)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// CreateEvent inserts an event.
func (s *Store) CreateEvent(ctx context.Context, e calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(id, title, description, starts_at, ends_at, all_day, color, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, nullString(e.Description), fmtTime(e.StartsAt), fmtTime(e.EndsAt),
		e.AllDay, e.Color, e.CreatedBy, fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt),
	)
	return err
}

// GetEvent retrieves an event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := scanEvent(s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEvent overwrites the editable columns.
func (s *Store) UpdateEvent(ctx context.Context, e calendar.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET title = ?, description = ?, starts_at = ?, ends_at = ?, all_day = ?,
			color = ?, updated_at = ?
		WHERE id = ?`,
		e.Title, nullString(e.Description), fmtTime(e.StartsAt), fmtTime(e.EndsAt), e.AllDay,
		e.Color, fmtTime(e.UpdatedAt), e.ID,
	)
	return err
}

// DeleteEvent removes an event and reports whether it existed.
func (s *Store) DeleteEvent(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListEvents returns events overlapping r:
// starts_at <= r.End AND ends_at >= r.Start.
func (s *Store) ListEvents(ctx context.Context, r calendar.Range) ([]calendar.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE starts_at <= ? AND ends_at >= ? ORDER BY starts_at, id",
		fmtTime(r.End), fmtTime(r.Start),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calendar.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
