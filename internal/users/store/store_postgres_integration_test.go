//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"userprofile/internal/users/models"
	"userprofile/internal/users/store"
	"userprofile/pkg/platform/sentinel"
	"userprofile/pkg/testutil/containers"
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
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "users"))
}

func pgUser(externalID string) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.User{
		ID:          uuid.New(),
		ExternalID:  externalID,
		Username:    "ada",
		Email:       "ada@example.com",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Role:        models.DefaultRole,
		DisplayName: "Ada Lovelace",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	u := pgUser("auth0|ada")
	s.Require().NoError(s.store.Insert(ctx, u))

	byExternal, err := s.store.FindByExternalID(ctx, "auth0|ada")
	s.Require().NoError(err)
	s.Equal(u.ID, byExternal.ID)
	s.Equal("Ada Lovelace", byExternal.DisplayName)
	s.True(u.CreatedAt.Equal(byExternal.CreatedAt))

	byID, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.ExternalID, byID.ExternalID)

	_, err = s.store.FindByExternalID(ctx, "auth0|missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()
	u := pgUser("auth0|ada")
	s.Require().NoError(s.store.Insert(ctx, u))

	u.PictureURL = "https://img/ada.png"
	u.UpdatedAt = u.UpdatedAt.Add(time.Minute)
	s.Require().NoError(s.store.Update(ctx, u))

	got, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("https://img/ada.png", got.PictureURL)

	s.ErrorIs(s.store.Update(ctx, pgUser("auth0|ghost")), sentinel.ErrNotFound)
}

// Concurrent inserts for one external id leave exactly one row; the losers
// observe ErrConflict from the unique constraint.
func (s *PostgresStoreSuite) TestConcurrentInsertSameExternalID() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Insert(ctx, pgUser("auth0|race"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestExtraProfileFieldsListAndDelete() {
	ctx := context.Background()
	u := pgUser("auth0|ada")
	u.Bio = "mathematician"
	u.Address = "London"
	u.PhoneNumber = "+44 20 0000"
	s.Require().NoError(s.store.Insert(ctx, u))

	later := pgUser("auth0|grace")
	later.CreatedAt = u.CreatedAt.Add(time.Second)
	s.Require().NoError(s.store.Insert(ctx, later))

	users, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal(u.ID, users[0].ID)
	s.Equal("mathematician", users[0].Bio)
	s.Equal("London", users[0].Address)
	s.Equal("+44 20 0000", users[0].PhoneNumber)

	u.Bio = "analyst"
	s.Require().NoError(s.store.Update(ctx, u))
	got, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("analyst", got.Bio)

	s.Require().NoError(s.store.Delete(ctx, u.ID))
	_, err = s.store.FindByID(ctx, u.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, u.ID), sentinel.ErrNotFound)
}
