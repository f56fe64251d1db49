//go:build integration

package principal_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"taskguard/internal/identity/models"
	"taskguard/internal/identity/store/principal"
	id "taskguard/pkg/domain"
	"taskguard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *principal.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = principal.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "principals"))
}

func (s *PostgresStoreSuite) newPrincipal(email string) *models.Principal {
	p, err := models.NewPrincipal(id.NewUserID(), email, "F", "L", "hash", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return p
}

func (s *PostgresStoreSuite) TestConcurrentDuplicateEmail() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, s.newPrincipal("race@example.com"))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, principal.ErrEmailTaken):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

func (s *PostgresStoreSuite) TestEmailLookupIsCaseInsensitive() {
	ctx := context.Background()
	p := s.newPrincipal("mixed@example.com")
	s.Require().NoError(s.store.Create(ctx, p))

	found, err := s.store.FindByEmail(ctx, "MIXED@Example.com")
	s.Require().NoError(err)
	s.Equal(p.ID, found.ID)
}

func (s *PostgresStoreSuite) TestExecuteAndFindByIDs() {
	ctx := context.Background()
	a := s.newPrincipal("a@example.com")
	b := s.newPrincipal("b@example.com")
	s.Require().NoError(s.store.Create(ctx, a))
	s.Require().NoError(s.store.Create(ctx, b))

	updated, err := s.store.Execute(ctx, a.ID,
		func(p *models.Principal) error { return p.CanDeactivate() },
		func(p *models.Principal) { p.ApplyDeactivation(time.Now()) },
	)
	s.Require().NoError(err)
	s.False(updated.Active)

	found, err := s.store.FindByIDs(ctx, []id.UserID{a.ID, b.ID, id.NewUserID()})
	s.Require().NoError(err)
	s.Len(found, 2)
}
