//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"obconsent/internal/session"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = session.NewRedis(s.redis.Client, session.WithTTL(time.Minute))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRegisterAndRead() {
	ctx := context.Background()
	d := &session.Data{
		SessionDataKey: "sdk-1",
		ConsentID:      "c-1",
		ClientID:       "tpp-1",
		RedirectURI:    "https://tpp.example.com/cb",
		Scopes:         []string{"openid", "accounts"},
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	primary := []session.RequestedClaim{{Name: session.IntentIDClaim, Value: "c-1", Essential: true}}
	s.Require().NoError(s.store.Register(ctx, d, primary, nil))

	got, err := s.store.Get(ctx, "sdk-1")
	s.Require().NoError(err)
	s.Equal(d.ConsentID, got.ConsentID)
	s.Equal(d.Scopes, got.Scopes)
	s.True(d.CreatedAt.Equal(got.CreatedAt))

	claims, err := s.store.RequestedClaims(ctx, "sdk-1", false)
	s.Require().NoError(err)
	s.Equal(primary, claims)

	refresh, err := s.store.RequestedClaims(ctx, "sdk-1", true)
	s.Require().NoError(err)
	s.Empty(refresh)

	ttl, err := s.redis.Client.TTL(ctx, "obconsent:session:sdk-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, &session.Data{SessionDataKey: "sdk-2"}))
	s.Require().NoError(s.store.Delete(ctx, "sdk-2"))

	_, err := s.store.Get(ctx, "sdk-2")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestMissingClaims() {
	claims, err := s.store.RequestedClaims(context.Background(), "none", false)
	s.Require().NoError(err)
	s.Nil(claims)
}
