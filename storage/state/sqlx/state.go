package sqlxstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_state (
	client_id  text PRIMARY KEY,
	state      jsonb NOT NULL,
	updated_at timestamptz NOT NULL
)`

// Repository persists the session state in postgres, one row per context id.
type Repository struct {
	db        *sqlx.DB
	contextID string
}

var _ session.StateRepository = (*Repository)(nil) // interface compliance check

func NewRepository(conf *core.Config, contextID string) (*Repository, error) {
	db, err := sqlx.Connect("postgres", conf.State.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}
	repo := &Repository{db: db, contextID: contextID}
	if err = repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

// NewRepositoryWithDB reuses an existing connection pool (tests, shared pools).
func NewRepositoryWithDB(db *sqlx.DB, contextID string) (*Repository, error) {
	repo := &Repository{db: db, contextID: contextID}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (repo *Repository) ensureSchema() error {
	_, err := repo.db.Exec(schema)
	return errors.Wrap(err, "creating client_state table")
}

func (repo *Repository) LoadState(ctx context.Context) (session.State, error) {
	var data []byte
	err := repo.db.QueryRowxContext(ctx,
		`SELECT state FROM client_state WHERE client_id = $1`, repo.contextID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO client_state (client_id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (client_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		repo.contextID, data, time.Now().UTC(),
	)
	return errors.Wrap(err, "writing state")
}

func (repo *Repository) ClearState(ctx context.Context) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM client_state WHERE client_id = $1`, repo.contextID)
	return errors.Wrap(err, "removing state")
}

func (repo *Repository) Close() error {
	return repo.db.Close()
}
