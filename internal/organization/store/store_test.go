package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskguard/internal/organization/models"
	id "taskguard/pkg/domain"
)

var orgCols = []string{"id", "name", "description", "created_at", "updated_at"}

func newOrg(t *testing.T, name string) *models.Organization {
	t.Helper()
	org, err := models.NewOrganization(id.NewOrganizationID(), name, "", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return org
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	beta, alpha := newOrg(t, "Beta"), newOrg(t, "Alpha")
	require.NoError(t, s.Create(ctx, beta))
	require.NoError(t, s.Create(ctx, alpha))

	t.Run("find returns a copy", func(t *testing.T) {
		got, err := s.FindByID(ctx, beta.ID)
		require.NoError(t, err)
		got.Name = "mutated"
		again, err := s.FindByID(ctx, beta.ID)
		require.NoError(t, err)
		assert.Equal(t, "Beta", again.Name)
	})

	t.Run("find by ids orders by name and skips unknown", func(t *testing.T) {
		got, err := s.FindByIDs(ctx, []id.OrganizationID{beta.ID, id.NewOrganizationID(), alpha.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Alpha", got[0].Name)
		assert.Equal(t, "Beta", got[1].Name)
	})

	t.Run("execute keeps state on validation failure", func(t *testing.T) {
		_, err := s.Execute(ctx, alpha.ID,
			func(*models.Organization) error { return errors.New("nope") },
			func(o *models.Organization) { o.Name = "never" },
		)
		require.Error(t, err)
		got, _ := s.FindByID(ctx, alpha.ID)
		assert.Equal(t, "Alpha", got.Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, alpha.ID))
		assert.ErrorIs(t, s.Delete(ctx, alpha.ID), ErrNotFound)
		_, err := s.FindByID(ctx, alpha.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestPostgresStore_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	org := newOrg(t, "Acme")
	mock.ExpectQuery(`SELECT .* FROM organizations WHERE id = \$1`).
		WithArgs(org.ID.String()).
		WillReturnRows(sqlmock.NewRows(orgCols).AddRow(org.ID.String(), "Acme", "", org.CreatedAt, org.UpdatedAt))
	mock.ExpectQuery(`SELECT .* FROM organizations WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(orgCols))

	got, err := s.FindByID(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.ID)
	assert.Equal(t, "Acme", got.Name)

	_, err = s.FindByID(context.Background(), id.NewOrganizationID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteUpdatesInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	org := newOrg(t, "Acme")
	later := org.CreatedAt.Add(time.Hour)
	name := "Acme Corp"

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(orgCols).AddRow(org.ID.String(), "Acme", "", org.CreatedAt, org.UpdatedAt))
	mock.ExpectExec(`UPDATE organizations SET name = \$2`).
		WithArgs(org.ID.String(), "Acme Corp", "", later).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changes := models.Changes{Name: &name}
	updated, err := s.Execute(context.Background(), org.ID,
		func(o *models.Organization) error { return o.CanApply(changes) },
		func(o *models.Organization) { o.Apply(changes, later) },
	)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExecuteRollsBackOnValidationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	org := newOrg(t, "Acme")
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(orgCols).AddRow(org.ID.String(), "Acme", "", org.CreatedAt, org.UpdatedAt))
	mock.ExpectRollback()

	_, err = s.Execute(context.Background(), org.ID,
		func(o *models.Organization) error { return o.CanApply(models.Changes{}) },
		func(*models.Organization) {},
	)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec(`DELETE FROM organizations WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Delete(context.Background(), id.NewOrganizationID()), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
