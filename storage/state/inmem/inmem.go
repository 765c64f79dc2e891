package inmemstate

import (
	"context"
	"sync"

	"github.com/trezcool/shule/core/session"
)

// Repository is an in-memory state repository, for tests and ephemeral runs.
type Repository struct {
	mu    sync.RWMutex
	state *session.State
}

var _ session.StateRepository = (*Repository)(nil) // interface compliance check

func NewRepository() *Repository {
	return &Repository{}
}

func (repo *Repository) LoadState(_ context.Context) (session.State, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	if repo.state == nil {
		return session.State{}, session.ErrStateNotFound
	}
	return *repo.state, nil
}

func (repo *Repository) SaveState(_ context.Context, state session.State) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.state = &state
	return nil
}

func (repo *Repository) ClearState(_ context.Context) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.state = nil
	return nil
}
