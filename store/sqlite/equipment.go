package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/kyudo-console/equipment"
)

// =============================================================================
// BOWS (equipment.Store)
// =============================================================================

const bowColumns = `b.id, b.bow_number, b.name, b.strength, b.length, COALESCE(b.note, ''),
	COALESCE(b.borrower_profile_id, ''), COALESCE(p.display_name, ''), b.created_at, b.updated_at`

const bowFrom = " FROM bows b LEFT JOIN profiles p ON p.account_id = b.borrower_profile_id"

func scanBow(row interface{ Scan(dest ...any) error }) (equipment.Bow, error) {
	var b equipment.Bow
	var strength, length, createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.BowNumber, &b.Name, &strength, &length, &b.Note,
		&b.BorrowerProfileID, &b.BorrowerName, &createdAt, &updatedAt)
	if err != nil {
		return b, err
	}
	b.Strength, err = decimal.NewFromString(strength)
	if err != nil {
		return b, err
	}
	b.Length = equipment.Length(length)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

// CreateBow inserts a bow.
func (s *Store) CreateBow(ctx context.Context, b equipment.Bow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bows (id, bow_number, name, strength, length, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BowNumber, b.Name, b.Strength.String(), string(b.Length), nullString(b.Note),
		fmtTime(b.CreatedAt), fmtTime(b.UpdatedAt),
	)
	return err
}

// GetBow retrieves a bow by id.
func (s *Store) GetBow(ctx context.Context, id string) (*equipment.Bow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBow(s.db.QueryRowContext(ctx, "SELECT "+bowColumns+bowFrom+" WHERE b.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBows returns bows ordered by bow number.
func (s *Store) ListBows(ctx context.Context, f equipment.ListFilter) ([]equipment.Bow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + bowColumns + bowFrom
	if f.Available != nil {
		if *f.Available {
			query += " WHERE b.borrower_profile_id IS NULL"
		} else {
			query += " WHERE b.borrower_profile_id IS NOT NULL"
		}
	}
	query += " ORDER BY b.bow_number, b.id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []equipment.Bow
	for rows.Next() {
		b, err := scanBow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBow overwrites the editable columns. The borrower is left alone.
func (s *Store) UpdateBow(ctx context.Context, b equipment.Bow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE bows SET bow_number = ?, name = ?, strength = ?, length = ?, note = ?, updated_at = ?
		WHERE id = ?`,
		b.BowNumber, b.Name, b.Strength.String(), string(b.Length), nullString(b.Note),
		fmtTime(b.UpdatedAt), b.ID,
	)
	return err
}

// DeleteBow removes an available bow and its loan history.
func (s *Store) DeleteBow(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM bows WHERE id = ? AND borrower_profile_id IS NULL", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bows WHERE id = ?", id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return equipment.ErrBowNotFound
		}
		return equipment.ErrBorrowedDelete
	})
}

// BorrowBow marks the bow lent and opens a loan. The conditional update and
// the partial unique index both reject a second borrower.
func (s *Store) BorrowBow(ctx context.Context, loan equipment.Loan) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bows SET borrower_profile_id = ?, updated_at = ?
			WHERE id = ? AND borrower_profile_id IS NULL`,
			loan.BorrowerProfileID, fmtTime(loan.BorrowedAt), loan.BowID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark bow borrowed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bows WHERE id = ?", loan.BowID).Scan(&exists); err != nil {
				return err
			}
			if exists == 0 {
				return equipment.ErrBowNotFound
			}
			return equipment.ErrAlreadyBorrowed
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO bow_loans (id, bow_id, borrower_profile_id, operator_id, borrowed_at)
			VALUES (?, ?, ?, ?, ?)`,
			loan.ID, loan.BowID, loan.BorrowerProfileID, loan.OperatorID, fmtTime(loan.BorrowedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return equipment.ErrAlreadyBorrowed
			}
			return fmt.Errorf("failed to open loan: %w", err)
		}
		return nil
	})
}

// ReturnBow closes the most recent open loan and clears the borrower.
func (s *Store) ReturnBow(ctx context.Context, bowID string, at time.Time) (*equipment.Loan, error) {
	var loan *equipment.Loan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		l, err := scanLoan(tx.QueryRowContext(ctx, `
			SELECT `+loanColumns+loanFrom+`
			WHERE l.bow_id = ? AND l.returned_at IS NULL
			ORDER BY l.borrowed_at DESC LIMIT 1`,
			bowID,
		))
		if err == sql.ErrNoRows {
			return equipment.ErrNoOpenLoan
		}
		if err != nil {
			return err
		}

		ts := fmtTime(at)
		if _, err := tx.ExecContext(ctx,
			"UPDATE bow_loans SET returned_at = ? WHERE id = ?", ts, l.ID); err != nil {
			return fmt.Errorf("failed to close loan: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE bows SET borrower_profile_id = NULL, updated_at = ? WHERE id = ?", ts, bowID); err != nil {
			return fmt.Errorf("failed to clear borrower: %w", err)
		}
		returned := at.UTC()
		l.ReturnedAt = &returned
		loan = &l
		return nil
	})
	return loan, err
}

const loanColumns = `l.id, l.bow_id, l.borrower_profile_id, COALESCE(p.display_name, ''),
	l.operator_id, l.borrowed_at, l.returned_at`

const loanFrom = " FROM bow_loans l LEFT JOIN profiles p ON p.account_id = l.borrower_profile_id "

func scanLoan(row interface{ Scan(dest ...any) error }) (equipment.Loan, error) {
	var l equipment.Loan
	var borrowedAt string
	var returnedAt sql.NullString
	err := row.Scan(&l.ID, &l.BowID, &l.BorrowerProfileID, &l.BorrowerName,
		&l.OperatorID, &borrowedAt, &returnedAt)
	if err != nil {
		return l, err
	}
	l.BorrowedAt = parseTime(borrowedAt)
	l.ReturnedAt = parseNullTime(returnedAt)
	return l, nil
}

// ListLoans returns the loans of a bow, newest first.
func (s *Store) ListLoans(ctx context.Context, bowID string) ([]equipment.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+loanColumns+loanFrom+"WHERE l.bow_id = ? ORDER BY l.borrowed_at DESC, l.id", bowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []equipment.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
