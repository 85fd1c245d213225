package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/membership"
)

// =============================================================================
// ACCESS RESOLUTION (auth.AccessResolver)
// =============================================================================

// ResolveAccess returns the stored role, sub-permissions and session
// version of an account.
func (s *Store) ResolveAccess(ctx context.Context, accountID string) (auth.Access, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a auth.Access
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT role, session_version FROM accounts WHERE id = ?", accountID,
	).Scan(&role, &a.SessionVersion)
	if err == sql.ErrNoRows {
		return auth.Access{}, auth.ErrAccountNotFound
	}
	if err != nil {
		return auth.Access{}, err
	}
	a.Role = auth.Role(role)
	a.Permissions, err = loadPermissions(ctx, s.db, accountID)
	if err != nil {
		return auth.Access{}, err
	}
	return a, nil
}

func loadPermissions(ctx context.Context, q querier, accountID string) ([]auth.Permission, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT permission FROM account_permissions WHERE account_id = ? ORDER BY permission",
		accountID,
	)
	if err != nil {
		return nil, err
	}
	names, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	perms := make([]auth.Permission, 0, len(names))
	for _, n := range names {
		perms = append(perms, auth.Permission(n))
	}
	return perms, nil
}

// =============================================================================
// ACCOUNTS (membership.Store)
// =============================================================================

// CreateAccount inserts the account, its permissions, and its profile.
func (s *Store) CreateAccount(ctx context.Context, a membership.Account, p membership.Profile) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, email, password_hash, role, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.Email, a.PasswordHash, string(a.Role), fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return membership.ErrEmailTaken
			}
			return fmt.Errorf("failed to insert account: %w", err)
		}
		if err := replacePermissions(ctx, tx, a.ID, a.Permissions); err != nil {
			return err
		}
		return insertProfile(ctx, tx, p)
	})
}

func replacePermissions(ctx context.Context, tx *sql.Tx, accountID string, perms []auth.Permission) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM account_permissions WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("failed to clear permissions: %w", err)
	}
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO account_permissions (account_id, permission) VALUES (?, ?)",
			accountID, string(p),
		); err != nil {
			return fmt.Errorf("failed to insert permission: %w", err)
		}
	}
	return nil
}

func insertProfile(ctx context.Context, tx *sql.Tx, p membership.Profile) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO profiles
		(account_id, display_name, generation, gender, department, ryuha, position, public_note,
		 student_number, phone, address, restricted_note, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AccountID, p.DisplayName,
		nullString(p.Generation), nullString(string(p.Gender)), nullString(p.Department),
		nullString(p.Ryuha), nullString(p.Position), nullString(p.PublicNote),
		nullString(p.StudentNumber), nullString(p.Phone), nullString(p.Address),
		nullString(p.RestrictedNote), fmtTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

const accountColumns = "id, email, password_hash, role, session_version, created_at, updated_at"

func (s *Store) getAccount(ctx context.Context, where string, arg string) (*membership.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a membership.Account
	var role, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE "+where, arg,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &a.SessionVersion, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role = auth.Role(role)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)

	a.Permissions, err = loadPermissions(ctx, s.db, a.ID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount retrieves an account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*membership.Account, error) {
	return s.getAccount(ctx, "id = ?", id)
}

// GetAccountByEmail retrieves an account by its (lowercase) email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*membership.Account, error) {
	return s.getAccount(ctx, "email = ?", email)
}

// AccountExists reports whether an account with id exists.
func (s *Store) AccountExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE id = ?", id).Scan(&n)
	return n > 0, err
}

// ProfileExists reports whether a profile with id exists.
func (s *Store) ProfileExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles WHERE account_id = ?", id).Scan(&n)
	return n > 0, err
}

// UpdatePassword stores a new password hash and revokes existing sessions.
// It returns the new session version.
func (s *Store) UpdatePassword(ctx context.Context, id, hash string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE accounts SET password_hash = ?, session_version = session_version + 1, updated_at = ?
		WHERE id = ? RETURNING session_version`,
		hash, fmtTime(at), id,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, membership.ErrAccountNotFound
	}
	return version, err
}

// RevokeSessions invalidates every token issued for the account so far.
func (s *Store) RevokeSessions(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET session_version = session_version + 1 WHERE id = ?", id,
	)
	return err
}

// SetPermissions replaces the sub-permissions of an account.
func (s *Store) SetPermissions(ctx context.Context, id string, perms []auth.Permission, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := replacePermissions(ctx, tx, id, perms); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "UPDATE accounts SET updated_at = ? WHERE id = ?", fmtTime(at), id)
		return err
	})
}

// =============================================================================
// PROFILES (membership.Store)
// =============================================================================

const profileColumns = `p.account_id, a.email, p.display_name,
	COALESCE(p.generation, ''), COALESCE(p.gender, ''), COALESCE(p.department, ''),
	COALESCE(p.ryuha, ''), COALESCE(p.position, ''), COALESCE(p.public_note, ''),
	COALESCE(p.student_number, ''), COALESCE(p.phone, ''), COALESCE(p.address, ''),
	COALESCE(p.restricted_note, ''), p.updated_at`

func scanProfile(row interface{ Scan(dest ...any) error }) (membership.Profile, error) {
	var p membership.Profile
	var gender, updatedAt string
	err := row.Scan(
		&p.AccountID, &p.Email, &p.DisplayName,
		&p.Generation, &gender, &p.Department,
		&p.Ryuha, &p.Position, &p.PublicNote,
		&p.StudentNumber, &p.Phone, &p.Address,
		&p.RestrictedNote, &updatedAt,
	)
	if err != nil {
		return p, err
	}
	p.Gender = membership.Gender(gender)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// GetProfile retrieves a profile by account id.
func (s *Store) GetProfile(ctx context.Context, id string) (*membership.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanProfile(s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles p JOIN accounts a ON a.id = p.account_id WHERE p.account_id = ?",
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns profiles ordered by generation then student number.
func (s *Store) ListProfiles(ctx context.Context, f membership.ListFilter) ([]membership.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if f.Query != "" {
		where = append(where,
			"(instr(fold(p.display_name), ?) > 0 OR instr(fold(COALESCE(p.student_number, '')), ?) > 0)")
		q := strings.TrimSpace(f.Query)
		args = append(args, foldArg(q), foldArg(q))
	}
	if f.Generation != "" {
		where = append(where, "p.generation = ?")
		args = append(args, f.Generation)
	}
	query := "SELECT " + profileColumns + " FROM profiles p JOIN accounts a ON a.id = p.account_id"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY COALESCE(p.generation, ''), COALESCE(p.student_number, ''), p.display_name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []membership.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProfile overwrites every profile column.
func (s *Store) UpdateProfile(ctx context.Context, p membership.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET
			display_name = ?, generation = ?, gender = ?, department = ?, ryuha = ?,
			position = ?, public_note = ?, student_number = ?, phone = ?, address = ?,
			restricted_note = ?, updated_at = ?
		WHERE account_id = ?`,
		p.DisplayName, nullString(p.Generation), nullString(string(p.Gender)),
		nullString(p.Department), nullString(p.Ryuha), nullString(p.Position),
		nullString(p.PublicNote), nullString(p.StudentNumber), nullString(p.Phone),
		nullString(p.Address), nullString(p.RestrictedNote), fmtTime(p.UpdatedAt),
		p.AccountID,
	)
	return err
}
