package redisstate

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/session"
)

func setup(t *testing.T, contextID string) *Repository {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRepositoryWithClient(rdb, contextID)
}

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo := setup(t, "client1")

	_, err := repo.LoadState(ctx)
	assert.Equal(t, session.ErrStateNotFound, errors.Cause(err))

	state := session.State{
		ClientID:        "client1",
		User:            &session.User{ID: "usr1", Email: "amina@shule.test", Roles: []string{session.RoleAdmin}},
		IsAuthenticated: true,
		SelectedRole:    session.RoleAdmin,
	}
	require.NoError(t, repo.SaveState(ctx, state))

	got, err := repo.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.ClientID, got.ClientID)
	assert.Equal(t, state.SelectedRole, got.SelectedRole)
	require.NotNil(t, got.User)
	assert.Equal(t, "amina@shule.test", got.User.Email)

	require.NoError(t, repo.ClearState(ctx))
	_, err = repo.LoadState(ctx)
	assert.Equal(t, session.ErrStateNotFound, errors.Cause(err))
}

func TestRepository_statesAreIsolatedByContext(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo1 := NewRepositoryWithClient(rdb, "client1")
	repo2 := NewRepositoryWithClient(rdb, "client2")

	require.NoError(t, repo1.SaveState(ctx, session.State{ClientID: "client1", IsAuthenticated: true}))

	_, err := repo2.LoadState(ctx)
	assert.Equal(t, session.ErrStateNotFound, errors.Cause(err))
}
