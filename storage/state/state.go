// Package state selects the session state backend from config.
package state

import (
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/session"
	filestate "github.com/trezcool/shule/storage/state/file"
	inmemstate "github.com/trezcool/shule/storage/state/inmem"
	redisstate "github.com/trezcool/shule/storage/state/redis"
	sqlxstate "github.com/trezcool/shule/storage/state/sqlx"
)

// NewRepository returns the state repository named by conf.State.Backend.
// contextID scopes shared backends (redis, postgres) to one client context;
// the file and inmem backends hold a single context by nature.
func NewRepository(conf *core.Config, contextID string) (session.StateRepository, error) {
	switch conf.State.Backend {
	case "inmem":
		return inmemstate.NewRepository(), nil
	case "file", "":
		return filestate.NewRepository(conf.State.FilePath)
	case "redis":
		return redisstate.NewRepository(conf, contextID), nil
	case "postgres":
		return sqlxstate.NewRepository(conf, contextID)
	default:
		return nil, errors.Errorf("unknown state backend %q", conf.State.Backend)
	}
}
