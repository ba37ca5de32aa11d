//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"regcore/internal/label/store"
	"regcore/pkg/platform/sentinel"
	"regcore/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
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
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "domain_tld", "reserved_domain_names"))
	_, err := s.postgres.DB.ExecContext(ctx,
		`INSERT INTO domain_tld (tld, idn_table) VALUES ('.test', '/^[a-z0-9-]+$/i'), ('.bare', NULL)`)
	s.Require().NoError(err)
	_, err = s.postgres.DB.ExecContext(ctx, `INSERT INTO reserved_domain_names (name) VALUES ('nic')`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestZonePolicy() {
	ctx := context.Background()

	s.Run("existing zone is supported", func() {
		policy, err := s.store.ZonePolicy(ctx, ".TEST")
		s.Require().NoError(err)
		s.Equal(".test", policy.TLD)
		s.True(policy.Supported)
		s.Equal(`/^[a-z0-9-]+$/i`, policy.IDNTable)
	})

	s.Run("zone without table has empty pattern", func() {
		policy, err := s.store.ZonePolicy(ctx, ".bare")
		s.Require().NoError(err)
		s.Empty(policy.IDNTable)
	})

	s.Run("missing zone", func() {
		_, err := s.store.ZonePolicy(ctx, ".nope")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestIsReserved() {
	reserved, err := s.store.IsReserved(context.Background(), "NIC")
	s.Require().NoError(err)
	s.True(reserved)
}
