package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskguard/internal/membership/models"
	id "taskguard/pkg/domain"
)

var membershipCols = []string{"user_id", "organization_id", "role", "joined_at"}

func TestPostgresStore_CreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec(`INSERT INTO memberships`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "memberships_pkey"})

	err = s.Create(context.Background(), newMembership(t, id.NewUserID(), id.NewOrganizationID(), id.RoleUser))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateMapsMissingParent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec(`INSERT INTO memberships`).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err = s.Create(context.Background(), newMembership(t, id.NewUserID(), id.NewOrganizationID(), id.RoleUser))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Find(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	userID, orgID := id.NewUserID(), id.NewOrganizationID()
	joined := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM memberships WHERE user_id = \$1 AND organization_id = \$2`).
		WithArgs(userID.String(), orgID.String()).
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow(userID.String(), orgID.String(), "MANAGER", joined))
	mock.ExpectQuery(`SELECT .* FROM memberships`).
		WillReturnRows(sqlmock.NewRows(membershipCols))

	m, err := s.Find(context.Background(), userID, orgID)
	require.NoError(t, err)
	assert.Equal(t, id.RoleManager, m.Role)
	assert.Equal(t, joined, m.JoinedAt)

	_, err = s.Find(context.Background(), id.NewUserID(), orgID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteLocksRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	m := newMembership(t, id.NewUserID(), id.NewOrganizationID(), id.RoleUser)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(membershipCols).AddRow(m.UserID.String(), m.OrganizationID.String(), "USER", m.JoinedAt))
	mock.ExpectExec(`UPDATE memberships SET role = \$3`).
		WithArgs(m.UserID.String(), m.OrganizationID.String(), "ORG_ADMIN").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := s.Execute(context.Background(), m.UserID, m.OrganizationID,
		func(cur *models.Membership) error { return cur.CanChangeRole(id.RoleOrgAdmin) },
		func(cur *models.Membership) { cur.ApplyRoleChange(id.RoleOrgAdmin) },
	)
	require.NoError(t, err)
	assert.Equal(t, id.RoleOrgAdmin, updated.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec(`DELETE FROM memberships WHERE user_id`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Delete(context.Background(), id.NewUserID(), id.NewOrganizationID()), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
