package principal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "taskguard/pkg/domain"
)

func TestPostgresStore_CreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec(`INSERT INTO principals`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "principals_email_key"})

	p := newPrincipal(t, "dup@example.com")
	err = s.Create(context.Background(), p)
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectQuery(`SELECT .* FROM principals WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = s.FindByID(context.Background(), id.NewUserID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByIDsUsesArray(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	a, b := id.NewUserID(), id.NewUserID()
	now := time.Now()
	mock.ExpectQuery(`WHERE id = ANY\(\$1::uuid\[\]\)`).
		WithArgs("{\"" + a.String() + "\",\"" + b.String() + "\"}").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password_hash", "active", "created_at", "updated_at"}).
			AddRow(a.String(), "a@example.com", "A", "A", "h", true, now, now))

	found, err := s.FindByIDs(context.Background(), []id.UserID{a, b})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a, found[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	mock.ExpectExec(`DELETE FROM principals`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.Delete(context.Background(), id.NewUserID()), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
