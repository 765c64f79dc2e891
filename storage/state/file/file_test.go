package filestate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/session"
)

func TestRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	_, err = repo.LoadState(ctx)
	assert.Equal(t, session.ErrStateNotFound, errors.Cause(err))

	state := session.State{
		ClientID: "client1",
		User: &session.User{
			ID:    "usr1",
			Name:  "Amina Juma",
			Email: "amina@shule.test",
			Roles: []string{session.RoleTeacher, session.RoleParent},
		},
		IsAuthenticated: true,
		SelectedRole:    session.RoleTeacher,
		UpdatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.SaveState(ctx, state))

	got, err := repo.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	require.NoError(t, repo.ClearState(ctx))
	_, err = repo.LoadState(ctx)
	assert.Equal(t, session.ErrStateNotFound, errors.Cause(err))

	// clearing an already-empty repository is fine
	require.NoError(t, repo.ClearState(ctx))
}
