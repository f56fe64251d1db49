package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"taskguard/internal/membership/models"
	"taskguard/internal/platform/postgres"
	id "taskguard/pkg/domain"
	txcontext "taskguard/pkg/platform/tx"
)

// PostgresStore persists memberships. The (user_id, organization_id) primary
// key enforces uniqueness.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const membershipColumns = `user_id, organization_id, role, joined_at`

func (s *PostgresStore) Find(ctx context.Context, userID id.UserID, orgID id.OrganizationID) (*models.Membership, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND organization_id = $2`,
		uuid.UUID(userID), uuid.UUID(orgID))
	return scanMembership(row)
}

// Create relies on the primary key: a unique violation becomes ErrDuplicate.
func (s *PostgresStore) Create(ctx context.Context, m *models.Membership) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES ($1, $2, $3, $4)`,
		uuid.UUID(m.UserID), uuid.UUID(m.OrganizationID), string(m.Role), m.JoinedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		if postgres.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID, orgID id.OrganizationID) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`DELETE FROM memberships WHERE user_id = $1 AND organization_id = $2`,
		uuid.UUID(userID), uuid.UUID(orgID))
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Execute locks the row, validates, mutates and writes the role back.
func (s *PostgresStore) Execute(ctx context.Context, userID id.UserID, orgID id.OrganizationID, validate func(*models.Membership) error, mutate func(*models.Membership)) (*models.Membership, error) {
	var result *models.Membership
	err := txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)
		m, err := scanMembership(exec.QueryRowContext(txCtx,
			`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND organization_id = $2 FOR UPDATE`,
			uuid.UUID(userID), uuid.UUID(orgID)))
		if err != nil {
			return err
		}
		if err := validate(m); err != nil {
			return err
		}
		mutate(m)
		if _, err := exec.ExecContext(txCtx,
			`UPDATE memberships SET role = $3 WHERE user_id = $1 AND organization_id = $2`,
			uuid.UUID(userID), uuid.UUID(orgID), string(m.Role)); err != nil {
			return fmt.Errorf("update membership: %w", err)
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Membership, error) {
	return s.list(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE organization_id = $1 ORDER BY joined_at, user_id`,
		uuid.UUID(orgID))
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Membership, error) {
	return s.list(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 ORDER BY joined_at, organization_id`,
		uuid.UUID(userID))
}

func (s *PostgresStore) DeleteByOrganization(ctx context.Context, orgID id.OrganizationID) (int, error) {
	return s.deleteWhere(ctx, `DELETE FROM memberships WHERE organization_id = $1`, uuid.UUID(orgID))
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID id.UserID) (int, error) {
	return s.deleteWhere(ctx, `DELETE FROM memberships WHERE user_id = $1`, uuid.UUID(userID))
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]*models.Membership, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) deleteWhere(ctx context.Context, query string, arg any) (int, error) {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query, arg)
	if err != nil {
		return 0, fmt.Errorf("delete memberships: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete memberships: %w", err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(row scanner) (*models.Membership, error) {
	var (
		m      models.Membership
		userID uuid.UUID
		orgID  uuid.UUID
		role   string
	)
	if err := row.Scan(&userID, &orgID, &role, &m.JoinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	m.UserID = id.UserID(userID)
	m.OrganizationID = id.OrganizationID(orgID)
	m.Role = id.Role(role)
	return &m, nil
}
