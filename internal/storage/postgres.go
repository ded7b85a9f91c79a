package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"correction-workflow/internal/domain"
	"correction-workflow/internal/workflow"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx workflow.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// ReadOnly gives fn a consistent snapshot of the catalog, the document and
// its history. Nothing it does is committed.
func (s *PostgresStore) ReadOnly(ctx context.Context, fn func(tx workflow.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *PostgresStore) run(ctx context.Context, opts *sql.TxOptions, fn func(tx workflow.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InsertNotification records one in-app notification. It reports false when
// the (event, user) pair was already delivered.
func (s *PostgresStore) InsertNotification(ctx context.Context, eventID, userID, documentID, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (event_id, user_id, document_id, message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, user_id) DO NOTHING
	`, eventID, userID, documentID, message)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type pgTx struct {
	tx *sql.Tx
}

const documentColumns = `id, category, correction_types, state, current_stage, department,
	requester_id, continuation_token, created_at, updated_at`

func scanDocument(row *sql.Row) (domain.Document, error) {
	var (
		doc   domain.Document
		tags  []string
		token sql.NullString
	)
	if err := row.Scan(
		&doc.ID,
		&doc.Category,
		pq.Array(&tags),
		&doc.State,
		&doc.CurrentStage,
		&doc.Department,
		&doc.RequesterID,
		&token,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return domain.Document{}, err
	}
	doc.CorrectionTypes = tags
	if token.Valid {
		doc.ContinuationToken = &token.String
	}
	return doc, nil
}

func (t *pgTx) LockDocument(ctx context.Context, documentID string) (domain.Document, error) {
	return scanDocument(t.tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, documentID))
}

func (t *pgTx) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	return scanDocument(t.tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID))
}

func (t *pgTx) DocumentIDByToken(ctx context.Context, token string) (string, error) {
	var id string
	row := t.tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE continuation_token = $1`, token)
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (t *pgTx) UpdateDocumentState(ctx context.Context, documentID, state string, stage int, token *string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE documents
		SET state = $2, current_stage = $3, continuation_token = $4, updated_at = NOW()
		WHERE id = $1
	`, documentID, state, stage, token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *pgTx) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, name, email, role, department
		FROM users
		WHERE id = $1
	`, userID)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (t *pgTx) UsersWithRoles(ctx context.Context, roles []string, department string) ([]domain.User, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, name, email, role, department
		FROM users
		WHERE role = ANY($1) AND ($2 = '' OR department = $2)
		ORDER BY id ASC
	`, pq.Array(roles), department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (t *pgTx) CategoryHasTransitions(ctx context.Context, category string) (bool, error) {
	var exists bool
	row := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transitions WHERE category = $1)`, category)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (t *pgTx) ListTransitions(ctx context.Context, category, state, correctionType string) ([]domain.Transition, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, category, correction_type, from_state, action, required_role, next_state, stage, department_scoped
		FROM transitions
		WHERE category = $1 AND from_state = $2 AND correction_type = $3
		ORDER BY stage ASC, id ASC
	`, category, state, correctionType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transition, 0)
	for rows.Next() {
		var tr domain.Transition
		if err := rows.Scan(
			&tr.ID,
			&tr.Category,
			&tr.CorrectionType,
			&tr.FromState,
			&tr.Action,
			&tr.RequiredRole,
			&tr.NextState,
			&tr.Stage,
			&tr.DepartmentScoped,
		); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *pgTx) HasOutgoingTransitions(ctx context.Context, category, state string) (bool, error) {
	var exists bool
	row := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transitions WHERE category = $1 AND from_state = $2)
	`, category, state)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (t *pgTx) InitialState(ctx context.Context, category string) (string, error) {
	var code string
	row := t.tx.QueryRowContext(ctx, `SELECT code FROM statuses WHERE category = $1 AND is_initial`, category)
	if err := row.Scan(&code); err != nil {
		return "", err
	}
	return code, nil
}

func (t *pgTx) ListLegacySteps(ctx context.Context, category string) ([]domain.LegacyStep, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT category, stage, approver_role, department_scoped
		FROM legacy_steps
		WHERE category = $1
		ORDER BY stage ASC
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]domain.LegacyStep, 0)
	for rows.Next() {
		var st domain.LegacyStep
		if err := rows.Scan(&st.Category, &st.Stage, &st.ApproverRole, &st.DepartmentScoped); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

func (t *pgTx) AppendHistory(ctx context.Context, rec domain.HistoryRecord) (bool, error) {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO approval_history (document_id, user_id, stage, action_type, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, user_id, stage, action_type) DO NOTHING
	`, rec.DocumentID, rec.UserID, rec.Stage, rec.ActionType, rec.Comment, createdAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *pgTx) CountDistinctApprovers(ctx context.Context, documentID string, stage int, rejectAction string) (int, error) {
	var count int
	row := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id)
		FROM approval_history
		WHERE document_id = $1 AND stage = $2 AND action_type <> $3
	`, documentID, stage, rejectAction)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (t *pgTx) SatisfiedStages(ctx context.Context, documentID, userID, rejectAction string) ([]int, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT stage
		FROM approval_history
		WHERE document_id = $1 AND user_id = $2 AND action_type <> $3
		ORDER BY stage ASC
	`, documentID, userID, rejectAction)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stages := make([]int, 0)
	for rows.Next() {
		var stage int
		if err := rows.Scan(&stage); err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stages, nil
}

func (t *pgTx) ListHistory(ctx context.Context, documentID string) ([]domain.HistoryRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, document_id, user_id, stage, action_type, comment, created_at
		FROM approval_history
		WHERE document_id = $1
		ORDER BY created_at ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.HistoryRecord, 0)
	for rows.Next() {
		var rec domain.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.UserID, &rec.Stage, &rec.ActionType, &rec.Comment, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (t *pgTx) PurgeHistory(ctx context.Context, documentID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM approval_history WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *pgTx) InsertAudit(ctx context.Context, entry domain.AuditEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO audit_log (document_id, actor_id, action_name, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.DocumentID, entry.ActorID, entry.ActionName, entry.Detail, createdAt)
	return err
}

func (t *pgTx) ListAudit(ctx context.Context, documentID string) ([]domain.AuditEntry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, document_id, actor_id, action_name, detail, created_at
		FROM audit_log
		WHERE document_id = $1
		ORDER BY created_at ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.ActorID, &e.ActionName, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
