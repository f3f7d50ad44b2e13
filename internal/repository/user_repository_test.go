package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/swipecook/internal/db/dbtest"
	"github.com/oggyb/swipecook/internal/match"
	"github.com/oggyb/swipecook/internal/repository"
)

func TestLinkPartners(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(dbtest.Open(t))

	require.NoError(t, repo.LinkPartners(ctx, "a", "b"))

	p, err := repo.PartnerOf(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "b", p)

	p, err = repo.PartnerOf(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "a", p)

	// relinking the same pair is a no-op
	require.NoError(t, repo.LinkPartners(ctx, "b", "a"))
}

func TestLinkPartners_AlreadyPartnered(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(dbtest.Open(t))

	require.NoError(t, repo.LinkPartners(ctx, "a", "b"))

	err := repo.LinkPartners(ctx, "a", "c")
	assert.ErrorIs(t, err, match.ErrAlreadyPartnered)

	// c must not be left half-linked
	_, err = repo.PartnerOf(ctx, "c")
	assert.ErrorIs(t, err, match.ErrNotPartnered)

	assert.Error(t, repo.LinkPartners(ctx, "a", "a"))
}

func TestPartnerOf_Unpaired(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewUserRepository(dbtest.Open(t))

	_, err := repo.PartnerOf(ctx, "ghost")
	assert.ErrorIs(t, err, match.ErrNotPartnered)

	require.NoError(t, repo.EnsureUser(ctx, "solo"))
	require.NoError(t, repo.EnsureUser(ctx, "solo"))
	_, err = repo.PartnerOf(ctx, "solo")
	assert.ErrorIs(t, err, match.ErrNotPartnered)

	_, err = repo.Get(ctx, "ghost")
	assert.ErrorIs(t, err, match.ErrUserNotFound)
}
