//go:build integration

package zonecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regcore/internal/label"
	labelstore "regcore/internal/label/store"
	"regcore/internal/zonecache"
	"regcore/pkg/platform/sentinel"
	"regcore/pkg/testutil/containers"
)

type RedisTierSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *countingStore
}

func TestRedisTierSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTierSuite))
}

func (s *RedisTierSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisTierSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.store = &countingStore{InMemoryStore: labelstore.NewInMemory()}
	s.store.PutZone(label.ZonePolicy{ID: 4, TLD: ".test", IDNTable: `/^[a-z]+$/`, Supported: true})
	s.store.Reserve("nic")
}

func (s *RedisTierSuite) newCache() *zonecache.Cache {
	return zonecache.New(s.store, time.Minute, zonecache.WithRedis(s.redis.Client))
}

func (s *RedisTierSuite) TestSharedAcrossInstances() {
	ctx := context.Background()

	_, err := s.newCache().ZonePolicy(ctx, ".test")
	s.Require().NoError(err)
	p, err := s.newCache().ZonePolicy(ctx, ".test")
	s.Require().NoError(err)

	s.Equal(int64(4), p.ID)
	s.Equal(`/^[a-z]+$/`, p.IDNTable)
	s.Equal(int64(1), s.store.policyCalls.Load())
}

func (s *RedisTierSuite) TestNegativeEntriesShared() {
	ctx := context.Background()

	_, err := s.newCache().ZonePolicy(ctx, ".missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.newCache().ZonePolicy(ctx, ".missing")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Equal(int64(1), s.store.policyCalls.Load())
}

func (s *RedisTierSuite) TestReservedShared() {
	ctx := context.Background()

	reserved, err := s.newCache().IsReserved(ctx, "nic")
	s.Require().NoError(err)
	s.True(reserved)
	reserved, err = s.newCache().IsReserved(ctx, "nic")
	s.Require().NoError(err)
	s.True(reserved)

	s.Equal(int64(1), s.store.reservedCalls.Load())
}

func (s *RedisTierSuite) TestInvalidateClearsRedis() {
	ctx := context.Background()
	cache := s.newCache()
	_, err := cache.ZonePolicy(ctx, ".test")
	s.Require().NoError(err)

	s.Require().NoError(cache.Invalidate(ctx, ".test"))
	_, err = s.newCache().ZonePolicy(ctx, ".test")
	s.Require().NoError(err)

	s.Equal(int64(2), s.store.policyCalls.Load())
}
