package filestate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/session"
)

const stateFileName = "state.json"

// Repository persists the session state as a JSON file, the durable storage of
// a CLI "browser context". Writes go through a temp file + rename so a crashed
// write never leaves a corrupt state behind.
type Repository struct {
	path string
}

var _ session.StateRepository = (*Repository)(nil) // interface compliance check

// NewRepository creates a file repository at path; when path is empty the
// state lives under the user config dir (e.g. ~/.config/shule/state.json).
func NewRepository(path string) (*Repository, error) {
	if path == "" {
		confDir, err := os.UserConfigDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolving user config dir")
		}
		path = filepath.Join(confDir, "shule", stateFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "creating state dir")
	}
	return &Repository{path: path}, nil
}

func (repo *Repository) LoadState(_ context.Context) (session.State, error) {
	data, err := os.ReadFile(repo.path)
	if err != nil {
		if os.IsNotExist(err) {
			return session.State{}, session.ErrStateNotFound
		}
		return session.State{}, errors.Wrap(err, "reading state file")
	}

	var state session.State
	if err = json.Unmarshal(data, &state); err != nil {
		return session.State{}, errors.Wrap(err, "decoding state file")
	}
	return state, nil
}

func (repo *Repository) SaveState(_ context.Context, state session.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding state")
	}

	tmp := repo.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "writing state file")
	}
	return errors.Wrap(os.Rename(tmp, repo.path), "replacing state file")
}

func (repo *Repository) ClearState(_ context.Context) error {
	if err := os.Remove(repo.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing state file")
	}
	return nil
}
