//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/audit/store/postgres"
	"taskguard/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_records", "principals")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) insertPrincipal(userID id.UserID) {
	now := time.Now()
	_, err := s.postgres.DB.ExecContext(context.Background(),
		`INSERT INTO principals (id, email, password_hash, created_at, updated_at) VALUES ($1, $2, 'x', $3, $3)`,
		uuid.UUID(userID), uuid.NewString()+"@example.com", now)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRecord(actor id.UserID, action audit.Action) *audit.Record {
	now := time.Now()
	return &audit.Record{
		ID:            audit.NewRecordID(now),
		ActorID:       actor,
		Action:        action,
		EntityType:    audit.EntityUser,
		EntityID:      actor.String(),
		SourceAddress: "127.0.0.1",
		Metadata:      map[string]string{"k": "v"},
		Timestamp:     now,
	}
}

func (s *PostgresStoreSuite) TestChainRoundTripsAndVerifies() {
	ctx := context.Background()
	actor := id.NewUserID()
	s.insertPrincipal(actor)

	for _, action := range []audit.Action{audit.ActionUserCreated, audit.ActionLogin, audit.ActionLogout} {
		s.Require().NoError(s.store.Append(ctx, s.newRecord(actor, action)))
	}

	chain, err := s.store.Chain(ctx)
	s.Require().NoError(err)
	s.Len(chain, 3)
	report := audit.VerifyChain(chain)
	s.True(report.Valid, "broken at %s: %s", report.BrokenAt, report.Problem)

	newest, err := s.store.Query(ctx, audit.Filter{ActorID: actor}, 1)
	s.Require().NoError(err)
	s.Require().Len(newest, 1)
	s.Equal(audit.ActionLogout, newest[0].Action)
	s.Equal("v", newest[0].Metadata["k"])
}

func (s *PostgresStoreSuite) TestConcurrentAppendsDoNotFork() {
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.store.Append(ctx, s.newRecord(id.UserID{}, audit.ActionLoginFailed))
		}()
	}
	wg.Wait()

	chain, err := s.store.Chain(ctx)
	s.Require().NoError(err)
	s.Len(chain, 20)
	s.True(audit.VerifyChain(chain).Valid)
}

func (s *PostgresStoreSuite) TestDetachActorSurvivesPrincipalDelete() {
	ctx := context.Background()
	actor := id.NewUserID()
	s.insertPrincipal(actor)
	s.Require().NoError(s.store.Append(ctx, s.newRecord(actor, audit.ActionLogin)))

	n, err := s.store.DetachActor(ctx, actor)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, uuid.UUID(actor))
	s.Require().NoError(err)

	chain, err := s.store.Chain(ctx)
	s.Require().NoError(err)
	s.Require().Len(chain, 1)
	s.True(chain[0].ActorDetached)
	s.True(chain[0].ActorID.IsNil())
	s.True(audit.VerifyChain(chain).Valid)
}
