package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskguard/internal/platform/postgres"
	"taskguard/internal/task/models"
	id "taskguard/pkg/domain"
	txcontext "taskguard/pkg/platform/tx"
)

// PostgresStore persists tasks. Soft-deleted rows stay in the table with
// lifecycle='deleted' and are filtered out of every read except
// FindByIDIncludingDeleted.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const taskColumns = `id, organization_id, creator_id, title, description, status, priority,
	due_date, lifecycle, deleted_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Task) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(t.ID), uuid.UUID(t.OrganizationID), uuid.UUID(t.CreatorID), t.Title, t.Description,
		string(t.Status), string(t.Priority), nullTime(t.DueDate), string(t.Lifecycle), nullTime(t.DeletedAt),
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND lifecycle = 'active'`, uuid.UUID(taskID))
	return scanTask(row)
}

func (s *PostgresStore) FindByIDIncludingDeleted(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, uuid.UUID(taskID))
	return scanTask(row)
}

func (s *PostgresStore) ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Task, error) {
	return s.list(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE organization_id = $1 AND lifecycle = 'active'
		ORDER BY created_at DESC, id`, uuid.UUID(orgID))
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID id.UserID) ([]*models.Task, error) {
	return s.list(ctx,
		`SELECT `+taskColumns+` FROM tasks t
		WHERE t.lifecycle = 'active'
		  AND (t.creator_id = $1 OR EXISTS (
		        SELECT 1 FROM task_assignments a WHERE a.task_id = t.id AND a.user_id = $1))
		ORDER BY t.created_at DESC, t.id`, uuid.UUID(userID))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// Execute locks the active row for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, taskID id.TaskID, validate func(*models.Task) error, mutate func(*models.Task)) (*models.Task, error) {
	var result *models.Task
	err := txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)
		t, err := scanTask(exec.QueryRowContext(txCtx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND lifecycle = 'active' FOR UPDATE`, uuid.UUID(taskID)))
		if err != nil {
			return err
		}
		if err := validate(t); err != nil {
			return err
		}
		mutate(t)
		if _, err := exec.ExecContext(txCtx,
			`UPDATE tasks SET title = $2, description = $3, status = $4, priority = $5, due_date = $6,
			lifecycle = $7, deleted_at = $8, updated_at = $9 WHERE id = $1`,
			uuid.UUID(taskID), t.Title, t.Description, string(t.Status), string(t.Priority),
			nullTime(t.DueDate), string(t.Lifecycle), nullTime(t.DeletedAt), t.UpdatedAt); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) DeleteByOrganization(ctx context.Context, orgID id.OrganizationID) (int, error) {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`DELETE FROM tasks WHERE organization_id = $1`, uuid.UUID(orgID))
	if err != nil {
		return 0, fmt.Errorf("delete organization tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete organization tasks: %w", err)
	}
	return int(n), nil
}

// AssignIfAbsent inserts with ON CONFLICT DO NOTHING and reads the row back,
// so concurrent callers all observe the single stored assignment.
func (s *PostgresStore) AssignIfAbsent(ctx context.Context, a *models.Assignment) (*models.Assignment, bool, error) {
	exec := txcontext.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`INSERT INTO task_assignments (task_id, user_id, assigned_at) VALUES ($1, $2, $3)
		ON CONFLICT (task_id, user_id) DO NOTHING`,
		uuid.UUID(a.TaskID), uuid.UUID(a.UserID), a.AssignedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("insert assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert assignment: %w", err)
	}
	if n == 1 {
		cp := *a
		return &cp, true, nil
	}

	existing, err := scanAssignment(exec.QueryRowContext(ctx,
		`SELECT task_id, user_id, assigned_at FROM task_assignments WHERE task_id = $1 AND user_id = $2`,
		uuid.UUID(a.TaskID), uuid.UUID(a.UserID)))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) Unassign(ctx context.Context, taskID id.TaskID, userID id.UserID) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`DELETE FROM task_assignments WHERE task_id = $1 AND user_id = $2`,
		uuid.UUID(taskID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, taskID id.TaskID) ([]*models.Assignment, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT task_id, user_id, assigned_at FROM task_assignments
		WHERE task_id = $1 ORDER BY assigned_at, user_id`, uuid.UUID(taskID))
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := []*models.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteAssignmentsByUser(ctx context.Context, userID id.UserID) (int, error) {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`DELETE FROM task_assignments WHERE user_id = $1`, uuid.UUID(userID))
	if err != nil {
		return 0, fmt.Errorf("delete user assignments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user assignments: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*models.Task, error) {
	var (
		t                       models.Task
		taskID, orgID, creator  uuid.UUID
		status, priority, cycle string
		due, deletedAt          sql.NullTime
	)
	err := row.Scan(&taskID, &orgID, &creator, &t.Title, &t.Description, &status, &priority,
		&due, &cycle, &deletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.ID = id.TaskID(taskID)
	t.OrganizationID = id.OrganizationID(orgID)
	t.CreatorID = id.UserID(creator)
	t.Status = models.Status(status)
	t.Priority = models.Priority(priority)
	t.Lifecycle = models.Lifecycle(cycle)
	if due.Valid {
		t.DueDate = &due.Time
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	return &t, nil
}

func scanAssignment(row scanner) (*models.Assignment, error) {
	var (
		a              models.Assignment
		taskID, userID uuid.UUID
	)
	if err := row.Scan(&taskID, &userID, &a.AssignedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	a.TaskID = id.TaskID(taskID)
	a.UserID = id.UserID(userID)
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
