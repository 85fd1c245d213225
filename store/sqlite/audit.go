package sqlite

import (
	"context"

	"github.com/warp/kyudo-console/audit"
)

// =============================================================================
// AUDIT LOG (audit.Sink, audit.Reader)
// =============================================================================

// WriteEntry appends an audit entry.
func (s *Store) WriteEntry(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, log, operator_id, subject_id, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Log), nullString(e.OperatorID), nullString(e.SubjectID),
		e.Action, nullString(e.Detail), fmtTime(e.At),
	)
	return err
}

// ListEntries returns the newest entries of one log.
func (s *Store) ListEntries(ctx context.Context, log audit.Log, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, log, COALESCE(operator_id, ''), COALESCE(subject_id, ''), action,
			COALESCE(detail, ''), created_at
		FROM audit_logs WHERE log = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		string(log), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var lg, at string
		if err := rows.Scan(&e.ID, &lg, &e.OperatorID, &e.SubjectID, &e.Action, &e.Detail, &at); err != nil {
			return nil, err
		}
		e.Log = audit.Log(lg)
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
