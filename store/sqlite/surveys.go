package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/warp/kyudo-console/survey"
)

// =============================================================================
// SURVEY HEADERS (survey.Store)
// =============================================================================

const surveyColumns = `id, title, COALESCE(description, ''), status, opens_at, closes_at,
	is_anonymous, created_by, created_at, updated_at`

func scanSurvey(row interface{ Scan(dest ...any) error }) (survey.Survey, error) {
	var sv survey.Survey
	var status, createdAt, updatedAt string
	var opensAt, closesAt sql.NullString
	err := row.Scan(&sv.ID, &sv.Title, &sv.Description, &status, &opensAt, &closesAt,
		&sv.IsAnonymous, &sv.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return sv, err
	}
	sv.Status = survey.Status(status)
	sv.OpensAt = parseNullTime(opensAt)
	sv.ClosesAt = parseNullTime(closesAt)
	sv.CreatedAt = parseTime(createdAt)
	sv.UpdatedAt = parseTime(updatedAt)
	return sv, nil
}

// GetSurvey retrieves a survey header by id.
func (s *Store) GetSurvey(ctx context.Context, id string) (*survey.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sv, err := scanSurvey(s.db.QueryRowContext(ctx,
		"SELECT "+surveyColumns+" FROM surveys WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

// ListSurveys returns survey headers, newest first.
func (s *Store) ListSurveys(ctx context.Context, f survey.ListFilter) ([]survey.Survey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if !f.IncludeDraft {
		where = append(where, "status <> 'draft'")
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, fmtTime(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at <= ?")
		args = append(args, fmtTime(*f.CreatedTo))
	}
	query := "SELECT " + surveyColumns + " FROM surveys"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []survey.Survey
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

// =============================================================================
// QUESTIONS AND OPTIONS
// =============================================================================

// ListQuestions returns the questions of a survey ordered by position, each
// with its options in insertion order.
func (s *Store) ListQuestions(ctx context.Context, surveyID string) ([]survey.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, survey_id, prompt, type, allow_option_add, position
		FROM survey_questions WHERE survey_id = ? ORDER BY position, id`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	var questions []survey.Question
	index := map[string]int{}
	for rows.Next() {
		var q survey.Question
		var typ string
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.Prompt, &typ, &q.AllowOptionAdd, &q.Position); err != nil {
			rows.Close()
			return nil, err
		}
		q.Type = survey.QuestionType(typ)
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	optRows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.question_id, o.label, o.created_by, o.created_at
		FROM survey_options o
		JOIN survey_questions q ON q.id = o.question_id
		WHERE q.survey_id = ?
		ORDER BY o.rowid`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()
	for optRows.Next() {
		var o survey.Option
		var createdAt string
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Label, &o.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt = parseTime(createdAt)
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, optRows.Err()
}

// AddOption appends an option to a question.
func (s *Store) AddOption(ctx context.Context, o survey.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertOption(ctx, s.db, o)
}

func insertOption(ctx context.Context, q querier, o survey.Option) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO survey_options (id, question_id, label, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.QuestionID, o.Label, o.CreatedBy, fmtTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert option: %w", err)
	}
	return nil
}

// =============================================================================
// TARGETING
// =============================================================================

// ListTargetGroups returns the target groups of a survey ordered by position.
func (s *Store) ListTargetGroups(ctx context.Context, surveyID string) ([]survey.TargetGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.position, c.field, c.op, c.value
		FROM survey_target_groups g
		LEFT JOIN survey_target_conditions c ON c.group_id = g.id
		WHERE g.survey_id = ?
		ORDER BY g.position, g.id, c.id`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []survey.TargetGroup
	for rows.Next() {
		var id string
		var pos int
		var field, op, value sql.NullString
		if err := rows.Scan(&id, &pos, &field, &op, &value); err != nil {
			return nil, err
		}
		if len(groups) == 0 || groups[len(groups)-1].ID != id {
			groups = append(groups, survey.TargetGroup{ID: id, Position: pos})
		}
		if field.Valid {
			g := &groups[len(groups)-1]
			g.Conditions = append(g.Conditions, survey.Condition{
				Field: survey.Field(field.String),
				Op:    survey.Op(op.String),
				Value: value.String,
			})
		}
	}
	return groups, rows.Err()
}

// ListExplicitTargets returns the explicitly targeted account ids.
func (s *Store) ListExplicitTargets(ctx context.Context, surveyID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT account_id FROM survey_targets WHERE survey_id = ? ORDER BY account_id", surveyID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// fieldColumns maps target fields to profile columns. Only these names are
// ever interpolated into SQL.
var fieldColumns = map[survey.Field]string{
	survey.FieldDisplayName:   "display_name",
	survey.FieldStudentNumber: "student_number",
	survey.FieldGeneration:    "generation",
	survey.FieldGender:        "gender",
	survey.FieldDepartment:    "department",
	survey.FieldRyuha:         "ryuha",
	survey.FieldPosition:      "position",
}

func foldArg(s string) string { return survey.Normalize(s) }

// conditionSQL renders one condition as a predicate over profiles.
func conditionSQL(c survey.Condition) (string, []any, error) {
	col, ok := fieldColumns[c.Field]
	if !ok {
		return "", nil, fmt.Errorf("unknown target field %q", c.Field)
	}
	folded := "fold(COALESCE(" + col + ", ''))"
	nonEmpty := folded + " <> ''"

	switch c.Op {
	case survey.OpEq:
		vals := c.EqValues()
		if len(vals) == 0 {
			return "0", nil, nil
		}
		return "(" + nonEmpty + " AND " + folded + " IN (" + placeholders(len(vals)) + "))", stringArgs(vals), nil
	case survey.OpILike:
		return "(" + nonEmpty + " AND instr(" + folded + ", ?) > 0)", []any{foldArg(c.Value)}, nil
	}
	return "", nil, fmt.Errorf("unknown target operator %q", c.Op)
}

// ResolveAccountIDs returns the profiles matching at least one group: each
// group is one query ANDing its conditions, and the results are unioned.
func (s *Store) ResolveAccountIDs(ctx context.Context, groups []survey.TargetGroup) ([]string, error) {
	if len(groups) == 0 {
		return s.ListAllAccountIDs(ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	union := survey.AccountSet{}
	for _, g := range groups {
		query := "SELECT account_id FROM profiles"
		var preds []string
		var args []any
		for _, c := range g.Conditions {
			pred, a, err := conditionSQL(c)
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
			args = append(args, a...)
		}
		if len(preds) > 0 {
			query += " WHERE " + strings.Join(preds, " AND ")
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("resolve group %s: %w", g.ID, err)
		}
		ids, err := scanIDs(rows)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			union[id] = struct{}{}
		}
	}
	return union.Sorted(), nil
}

// ListAllAccountIDs returns every profile id.
func (s *Store) ListAllAccountIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT account_id FROM profiles ORDER BY account_id")
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// GetProfileFields returns the targetable projection of one profile.
func (s *Store) GetProfileFields(ctx context.Context, accountID string) (*survey.ProfileFields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p survey.ProfileFields
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, display_name, COALESCE(student_number, ''), COALESCE(generation, ''),
			COALESCE(gender, ''), COALESCE(department, ''), COALESCE(ryuha, ''), COALESCE(position, '')
		FROM profiles WHERE account_id = ?`,
		accountID,
	).Scan(&p.AccountID, &p.DisplayName, &p.StudentNumber, &p.Generation,
		&p.Gender, &p.Department, &p.Ryuha, &p.Position)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// identityChunk keeps IN lists well below SQLite's variable limit.
const identityChunk = 500

// ListRespondentIdentities returns the display identity of each known id.
// Unknown ids are skipped.
func (s *Store) ListRespondentIdentities(ctx context.Context, accountIDs []string) ([]survey.Respondent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []survey.Respondent
	for start := 0; start < len(accountIDs); start += identityChunk {
		end := min(start+identityChunk, len(accountIDs))
		chunk := accountIDs[start:end]
		rows, err := s.db.QueryContext(ctx, `
			SELECT account_id, display_name, COALESCE(student_number, ''), COALESCE(generation, '')
			FROM profiles WHERE account_id IN (`+placeholders(len(chunk))+`)`,
			stringArgs(chunk)...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var r survey.Respondent
			if err := rows.Scan(&r.AccountID, &r.DisplayName, &r.StudentNumber, &r.Generation); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// =============================================================================
// RESPONSES
// =============================================================================

// GetResponse returns the response of one account, or nil.
func (s *Store) GetResponse(ctx context.Context, surveyID, accountID string) (*survey.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r survey.Response
	var submittedAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, survey_id, account_id, submitted_at, updated_at
		FROM survey_responses WHERE survey_id = ? AND account_id = ?`,
		surveyID, accountID,
	).Scan(&r.ID, &r.SurveyID, &r.AccountID, &submittedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.SubmittedAt = parseTime(submittedAt)
	r.UpdatedAt = parseTime(updatedAt)

	rows, err := s.db.QueryContext(ctx,
		"SELECT question_id, option_id FROM survey_answers WHERE response_id = ? ORDER BY rowid", r.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	r.Answers = map[string][]string{}
	for rows.Next() {
		var qid, oid string
		if err := rows.Scan(&qid, &oid); err != nil {
			return nil, err
		}
		r.Answers[qid] = append(r.Answers[qid], oid)
	}
	return &r, rows.Err()
}

// ListRespondents returns the accounts that responded to a survey.
func (s *Store) ListRespondents(ctx context.Context, surveyID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT account_id FROM survey_responses WHERE survey_id = ? ORDER BY account_id", surveyID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// ListAnswers returns every stored selection of a survey.
func (s *Store) ListAnswers(ctx context.Context, surveyID string) ([]survey.AnswerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.account_id, a.question_id, a.option_id
		FROM survey_answers a
		JOIN survey_responses r ON r.id = a.response_id
		WHERE r.survey_id = ?`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []survey.AnswerRow
	for rows.Next() {
		var a survey.AnswerRow
		if err := rows.Scan(&a.AccountID, &a.QuestionID, &a.OptionID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RespondedSurveyIDs returns the surveys an account has responded to.
func (s *Store) RespondedSurveyIDs(ctx context.Context, accountID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT survey_id FROM survey_responses WHERE account_id = ?", accountID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// UpsertResponse creates or replaces the response of an account. The answers
// are deleted and reinserted in the same transaction.
func (s *Store) UpsertResponse(ctx context.Context, surveyID, accountID string, answers map[string][]string, at time.Time) (string, error) {
	var responseID string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ts := fmtTime(at)
		err := tx.QueryRowContext(ctx, `
			INSERT INTO survey_responses (id, survey_id, account_id, submitted_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(survey_id, account_id) DO UPDATE SET updated_at = excluded.updated_at
			RETURNING id`,
			newResponseID(surveyID, accountID), surveyID, accountID, ts, ts,
		).Scan(&responseID)
		if err != nil {
			return fmt.Errorf("failed to upsert response: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM survey_answers WHERE response_id = ?", responseID); err != nil {
			return fmt.Errorf("failed to clear answers: %w", err)
		}

		qids := make([]string, 0, len(answers))
		for qid := range answers {
			qids = append(qids, qid)
		}
		sort.Strings(qids)
		for _, qid := range qids {
			for _, oid := range answers[qid] {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO survey_answers (response_id, question_id, option_id) VALUES (?, ?, ?)",
					responseID, qid, oid,
				); err != nil {
					return fmt.Errorf("failed to insert answer: %w", err)
				}
			}
		}
		return nil
	})
	return responseID, err
}

// newResponseID derives a stable id for the (survey, account) pair. The
// unique constraint makes the id matter only on first insert.
func newResponseID(surveyID, accountID string) string {
	return "resp-" + surveyID + "-" + accountID
}

// =============================================================================
// AUTHORING
// =============================================================================

// CreateSurvey inserts a survey with all of its authored parts.
func (s *Store) CreateSurvey(ctx context.Context, tree survey.Tree) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sv := tree.Survey
		_, err := tx.ExecContext(ctx, `
			INSERT INTO surveys
			(id, title, description, status, opens_at, closes_at, is_anonymous, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sv.ID, sv.Title, nullString(sv.Description), string(sv.Status),
			nullTime(sv.OpensAt), nullTime(sv.ClosesAt), sv.IsAnonymous, sv.CreatedBy,
			fmtTime(sv.CreatedAt), fmtTime(sv.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert survey: %w", err)
		}
		return insertSurveyParts(ctx, tx, tree)
	})
}

// ReplaceSurvey rewrites a draft survey. Responses, questions, options, and
// targeting are deleted and the tree is reinserted, all in one transaction.
func (s *Store) ReplaceSurvey(ctx context.Context, tree survey.Tree) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sv := tree.Survey
		var status string
		err := tx.QueryRowContext(ctx, "SELECT status FROM surveys WHERE id = ?", sv.ID).Scan(&status)
		if err == sql.ErrNoRows {
			return survey.ErrSurveyNotFound
		}
		if err != nil {
			return err
		}
		if survey.Status(status) != survey.StatusDraft {
			return survey.ErrNotDraft
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE surveys SET title = ?, description = ?, opens_at = ?, closes_at = ?,
				is_anonymous = ?, updated_at = ?
			WHERE id = ?`,
			sv.Title, nullString(sv.Description), nullTime(sv.OpensAt), nullTime(sv.ClosesAt),
			sv.IsAnonymous, fmtTime(sv.UpdatedAt), sv.ID,
		); err != nil {
			return fmt.Errorf("failed to update survey: %w", err)
		}

		// Answers, options, and conditions go with their parents (ON DELETE CASCADE).
		for _, stmt := range []string{
			"DELETE FROM survey_responses WHERE survey_id = ?",
			"DELETE FROM survey_questions WHERE survey_id = ?",
			"DELETE FROM survey_target_groups WHERE survey_id = ?",
			"DELETE FROM survey_targets WHERE survey_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, stmt, sv.ID); err != nil {
				return fmt.Errorf("failed to clear survey parts: %w", err)
			}
		}
		return insertSurveyParts(ctx, tx, tree)
	})
}

func insertSurveyParts(ctx context.Context, tx *sql.Tx, tree survey.Tree) error {
	for _, q := range tree.Questions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO survey_questions (id, survey_id, prompt, type, allow_option_add, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			q.ID, tree.Survey.ID, q.Prompt, string(q.Type), q.AllowOptionAdd, q.Position,
		); err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
		for _, o := range q.Options {
			o.QuestionID = q.ID
			if err := insertOption(ctx, tx, o); err != nil {
				return err
			}
		}
	}
	for _, g := range tree.TargetGroups {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO survey_target_groups (id, survey_id, position) VALUES (?, ?, ?)",
			g.ID, tree.Survey.ID, g.Position,
		); err != nil {
			return fmt.Errorf("failed to insert target group: %w", err)
		}
		for _, c := range g.Conditions {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO survey_target_conditions (group_id, field, op, value) VALUES (?, ?, ?, ?)",
				g.ID, string(c.Field), string(c.Op), c.Value,
			); err != nil {
				return fmt.Errorf("failed to insert target condition: %w", err)
			}
		}
	}
	for _, accountID := range tree.TargetAccountIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO survey_targets (survey_id, account_id) VALUES (?, ?)",
			tree.Survey.ID, accountID,
		); err != nil {
			return fmt.Errorf("failed to insert survey target: %w", err)
		}
	}
	return nil
}

// DeleteSurveys removes surveys and returns how many existed.
func (s *Store) DeleteSurveys(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM surveys WHERE id IN ("+placeholders(len(ids))+")", stringArgs(ids)...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// UpdateSurveyStatus changes the status only if it still equals from.
func (s *Store) UpdateSurveyStatus(ctx context.Context, id string, from, to survey.Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE surveys SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), fmtTime(at), id, string(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
