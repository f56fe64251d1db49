package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"taskguard/internal/organization/models"
	id "taskguard/pkg/domain"
	txcontext "taskguard/pkg/platform/tx"
)

// PostgresStore persists organizations. Deleting a row cascades to its
// memberships and tasks through foreign keys.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, name, description, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, org *models.Organization) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`INSERT INTO organizations (`+orgColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(org.ID), org.Name, org.Description, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrganizationID) (*models.Organization, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, uuid.UUID(orgID))
	return scanOrganization(row)
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.OrganizationID) ([]*models.Organization, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, orgID := range ids {
		raw[i] = orgID.String()
	}
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ANY($1::uuid[]) ORDER BY name, id`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return out, nil
}

// Execute locks the row for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, orgID id.OrganizationID, validate func(*models.Organization) error, mutate func(*models.Organization)) (*models.Organization, error) {
	var result *models.Organization
	err := txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)
		org, err := scanOrganization(exec.QueryRowContext(txCtx,
			`SELECT `+orgColumns+` FROM organizations WHERE id = $1 FOR UPDATE`, uuid.UUID(orgID)))
		if err != nil {
			return err
		}
		if err := validate(org); err != nil {
			return err
		}
		mutate(org)
		if _, err := exec.ExecContext(txCtx,
			`UPDATE organizations SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
			uuid.UUID(orgID), org.Name, org.Description, org.UpdatedAt); err != nil {
			return fmt.Errorf("update organization: %w", err)
		}
		result = org
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, orgID id.OrganizationID) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`DELETE FROM organizations WHERE id = $1`, uuid.UUID(orgID))
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row scanner) (*models.Organization, error) {
	var (
		org   models.Organization
		orgID uuid.UUID
	)
	if err := row.Scan(&orgID, &org.Name, &org.Description, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	org.ID = id.OrganizationID(orgID)
	return &org, nil
}
