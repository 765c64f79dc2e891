package redisstate

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
)

const stateKeyPrefix = "shule:state:"

// Repository persists the session state in redis, keyed by context id, for
// portal deployments where the store runs server-side.
type Repository struct {
	rdb       *redis.Client
	contextID string
}

var _ session.StateRepository = (*Repository)(nil) // interface compliance check

func NewRepository(conf *core.Config, contextID string) *Repository {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.State.Redis.Addr,
		Password: conf.State.Redis.Password,
		DB:       conf.State.Redis.DB,
	})
	return &Repository{rdb: rdb, contextID: contextID}
}

// NewRepositoryWithClient reuses an existing client (tests, shared pools).
func NewRepositoryWithClient(rdb *redis.Client, contextID string) *Repository {
	return &Repository{rdb: rdb, contextID: contextID}
}

func (repo *Repository) key() string {
	return stateKeyPrefix + repo.contextID
}

func (repo *Repository) LoadState(ctx context.Context) (session.State, error) {
	data, err := repo.rdb.Get(ctx, repo.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return session.State{}, session.ErrStateNotFound
		}
		return session.State{}, errors.Wrap(err, "reading state")
	}

	var state session.State
	if err = json.Unmarshal(data, &state); err != nil {
		return session.State{}, errors.Wrap(err, "decoding state")
	}
	return state, nil
}

func (repo *Repository) SaveState(ctx context.Context, state session.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encoding state")
	}
	return errors.Wrap(repo.rdb.Set(ctx, repo.key(), data, 0).Err(), "writing state")
}

func (repo *Repository) ClearState(ctx context.Context) error {
	return errors.Wrap(repo.rdb.Del(ctx, repo.key()).Err(), "removing state")
}

func (repo *Repository) Close() error {
	return repo.rdb.Close()
}
