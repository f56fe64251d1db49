package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"taskguard/internal/identity/models"
	"taskguard/internal/platform/postgres"
	id "taskguard/pkg/domain"
	txcontext "taskguard/pkg/platform/tx"
)

// PostgresStore persists principals in the principals table. Email
// uniqueness is the lower(email) unique index.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const principalColumns = `id, email, first_name, last_name, password_hash, active, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Principal) error {
	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Email, p.FirstName, p.LastName, p.PasswordHash, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.Principal, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, uuid.UUID(userID))
	return scanPrincipal(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`, email)
	return scanPrincipal(row)
}

// FindByIDs loads many principals in one round trip.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.UserID) ([]*models.Principal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, userID := range ids {
		raw[i] = userID.String()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find principals: %w", err)
	}
	defer rows.Close()

	var out []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate principals: %w", err)
	}
	return out, nil
}

// Execute locks the row with FOR UPDATE, validates, mutates and writes back
// inside one transaction.
func (s *PostgresStore) Execute(ctx context.Context, userID id.UserID, validate func(*models.Principal) error, mutate func(*models.Principal)) (*models.Principal, error) {
	var result *models.Principal
	err := txcontext.Run(ctx, s.db, func(txCtx context.Context) error {
		exec := txcontext.Pick(txCtx, s.db)
		p, err := scanPrincipal(exec.QueryRowContext(txCtx,
			`SELECT `+principalColumns+` FROM principals WHERE id = $1 FOR UPDATE`, uuid.UUID(userID)))
		if err != nil {
			return err
		}
		if err := validate(p); err != nil {
			return err
		}
		mutate(p)
		_, err = exec.ExecContext(txCtx, `
			UPDATE principals
			SET email = $2, first_name = $3, last_name = $4, password_hash = $5, active = $6, updated_at = $7
			WHERE id = $1
		`, uuid.UUID(p.ID), p.Email, p.FirstName, p.LastName, p.PasswordHash, p.Active, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update principal: %w", err)
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row scanner) (*models.Principal, error) {
	var (
		p      models.Principal
		userID uuid.UUID
	)
	err := row.Scan(&userID, &p.Email, &p.FirstName, &p.LastName, &p.PasswordHash, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	p.ID = id.UserID(userID)
	return &p, nil
}
