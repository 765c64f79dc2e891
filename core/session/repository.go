package session

import (
	"context"
	"errors"
)

// ErrStateNotFound is returned when no state has been persisted yet.
var ErrStateNotFound = errors.New("persisted state not found")

// StateRepository persists the durable Session snapshot. It is written only by
// the Store's internal persistence hook and read once, at startup, during
// hydration.
type StateRepository interface {
	LoadState(ctx context.Context) (State, error)
	SaveState(ctx context.Context, state State) error
	ClearState(ctx context.Context) error
}
