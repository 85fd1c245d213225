package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/kyudo-console/billing"
)

// =============================================================================
// INVOICES (billing.Store)
// =============================================================================

const invoiceColumns = `id, account_id, amount, billed_at, status, COALESCE(approver_id, ''),
	approved_at, requester_id, title, COALESCE(description, ''), created_at, updated_at`

func scanInvoice(row interface{ Scan(dest ...any) error }) (billing.Invoice, error) {
	var inv billing.Invoice
	var amount, billedAt, status, createdAt, updatedAt string
	var approvedAt sql.NullString
	err := row.Scan(&inv.ID, &inv.AccountID, &amount, &billedAt, &status, &inv.ApproverID,
		&approvedAt, &inv.RequesterID, &inv.Title, &inv.Description, &createdAt, &updatedAt)
	if err != nil {
		return inv, err
	}
	inv.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return inv, err
	}
	inv.BilledAt = parseTime(billedAt)
	inv.Status = billing.Status(status)
	inv.ApprovedAt = parseNullTime(approvedAt)
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return inv, nil
}

// CreateInvoice inserts an invoice.
func (s *Store) CreateInvoice(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices
		(id, account_id, amount, billed_at, status, approver_id, approved_at, requester_id,
		 title, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.AccountID, inv.Amount.String(), fmtTime(inv.BilledAt), string(inv.Status),
		nullString(inv.ApproverID), nullTime(inv.ApprovedAt), inv.RequesterID,
		inv.Title, nullString(inv.Description), fmtTime(inv.CreatedAt), fmtTime(inv.UpdatedAt),
	)
	return err
}

// GetInvoice retrieves an invoice by id.
func (s *Store) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvoices returns invoices, most recently billed first.
func (s *Store) ListInvoices(ctx context.Context, f billing.ListFilter) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	query := "SELECT " + invoiceColumns + " FROM invoices"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY billed_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ApproveInvoices approves the ids that are still pending.
func (s *Store) ApproveInvoices(ctx context.Context, ids []string, approverID string, at time.Time) ([]string, error) {
	ts := fmtTime(at)
	args := append([]any{approverID, ts, ts}, stringArgs(ids)...)
	return s.returningIDs(ctx, `
		UPDATE invoices SET status = 'approved', approver_id = ?, approved_at = ?, updated_at = ?
		WHERE status = 'pending' AND id IN (`+placeholders(len(ids))+`)
		RETURNING id`, args...)
}

// RevertInvoices returns approved ids to pending.
func (s *Store) RevertInvoices(ctx context.Context, ids []string, at time.Time) ([]string, error) {
	args := append([]any{fmtTime(at)}, stringArgs(ids)...)
	return s.returningIDs(ctx, `
		UPDATE invoices SET status = 'pending', approver_id = NULL, approved_at = NULL, updated_at = ?
		WHERE status = 'approved' AND id IN (`+placeholders(len(ids))+`)
		RETURNING id`, args...)
}

// DeleteInvoices removes invoices in a deletable state.
func (s *Store) DeleteInvoices(ctx context.Context, ids []string) ([]string, error) {
	return s.returningIDs(ctx, `
		DELETE FROM invoices
		WHERE status IN ('pending', 'approved') AND id IN (`+placeholders(len(ids))+`)
		RETURNING id`, stringArgs(ids)...)
}

func (s *Store) returningIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}
