package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// ErrRoleNotAllowed is returned when selecting a role the user does not hold.
var ErrRoleNotAllowed = errors.New("role not assigned to user")

type (
	// API is the subset of the backend client the Store drives.
	API interface {
		Login(ctx context.Context, creds Credentials) (*User, error)
		Logout(ctx context.Context) error
		LogoutAll(ctx context.Context) error
		Refresh(ctx context.Context) (*User, error)
		Me(ctx context.Context) (*User, error)
	}

	// Coordinator is the token coordinator surface the Store drives.
	Coordinator interface {
		StartProactiveRefresh()
		StopProactiveRefresh()
		RefreshTokens(ctx context.Context) bool
	}

	// Store is the single source of truth for the authenticated principal.
	// All mutation goes through its operations; consumers read snapshots.
	//
	// Network operations apply no mutual exclusion between each other: callers
	// must avoid firing Login/Logout/CheckAuth concurrently (e.g. disable the
	// submit control while a login is pending). Internal state mutation is
	// mutex-guarded, so races are on ordering, not memory.
	Store struct {
		api   API
		repo  StateRepository
		coord Coordinator
		log   core.Logger

		mu       sync.RWMutex
		sess     Session
		clientID string

		hydrateOnce sync.Once
	}
)

func NewStore(api API, repo StateRepository, log core.Logger) *Store {
	return &Store{
		api:  api,
		repo: repo,
		log:  log,
	}
}

// SetCoordinator attaches the token coordinator. Setter injection: the
// coordinator's refresh call is this store's Renew, so it cannot be a
// constructor argument.
func (s *Store) SetCoordinator(coord Coordinator) {
	s.coord = coord
}

// Hydrate restores the persisted state, once. Any failure is silent: the user
// is simply treated as unauthenticated. HasHydrated becomes true exactly once,
// whether or not persisted state existed.
func (s *Store) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		state, err := s.repo.LoadState(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case err == nil:
			s.clientID = state.ClientID
			s.sess.User = state.User
			s.sess.IsAuthenticated = state.User != nil
			if state.User != nil && state.User.HasRole(state.SelectedRole) {
				s.sess.SelectedRole = state.SelectedRole
			}
		case errors.Cause(err) == ErrStateNotFound:
			// first run
		default:
			s.log.Warn("loading persisted state failed", err)
		}
		if s.clientID == "" {
			s.clientID = uuid.NewString()
		}
		s.sess.HasHydrated = true
	})
}

// ClientID returns the stable installation id, minted during hydration.
func (s *Store) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID
}

// Session returns a snapshot of the current session.
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.sess
	if s.sess.User != nil {
		usr := *s.sess.User
		usr.Roles = append([]string(nil), s.sess.User.Roles...)
		snap.User = &usr
	}
	return snap
}

// Login authenticates against the backend. On success the session is
// populated and the proactive refresh timer starts. On failure the session is
// left empty; the error kind distinguishes invalid credentials, network
// failure and server failure (see schoolapi error taxonomy).
func (s *Store) Login(ctx context.Context, creds Credentials) (*User, error) {
	usr, err := s.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sess.User = usr
	s.sess.IsAuthenticated = true
	s.sess.SelectedRole = ""
	s.mu.Unlock()

	s.persist(ctx)
	if s.coord != nil {
		s.coord.StartProactiveRefresh()
	}
	return usr, nil
}

// Logout best-effort notifies the backend, then unconditionally clears the
// local session and stops the timer. It never surfaces an error.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.log.Debug("backend logout failed", err)
	}
	s.clear(ctx)
}

// LogoutAll is Logout for every one of the user's sessions (all devices).
func (s *Store) LogoutAll(ctx context.Context) {
	if err := s.api.LogoutAll(ctx); err != nil {
		s.log.Debug("backend logout-all failed", err)
	}
	s.clear(ctx)
}

// CheckAuth attempts to restore the session from an existing server-side
// session (via the ambient cookies). On success the session is populated and
// the timer starts; on any failure the session is cleared silently.
func (s *Store) CheckAuth(ctx context.Context) {
	usr, err := s.api.Me(ctx)
	if err != nil {
		s.log.Debug("session check failed", err)
		s.clear(ctx)
		return
	}

	s.mu.Lock()
	s.sess.User = usr
	s.sess.IsAuthenticated = true
	if !usr.HasRole(s.sess.SelectedRole) {
		s.sess.SelectedRole = ""
	}
	s.mu.Unlock()

	s.persist(ctx)
	if s.coord != nil {
		s.coord.StartProactiveRefresh()
	}
}

// RefreshToken requests credential renewal through the coordinator's
// single-flight gate.
func (s *Store) RefreshToken(ctx context.Context) bool {
	if s.coord == nil {
		return false
	}
	return s.coord.RefreshTokens(ctx)
}

// Renew performs the actual renewal call and applies the result. It is the
// coordinator's RefreshFunc; callers wanting single-flight semantics go
// through RefreshToken instead. The selected role is cleared on success: role
// context is not guaranteed stable across refresh for multi-role accounts.
func (s *Store) Renew(ctx context.Context) error {
	usr, err := s.api.Refresh(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if usr != nil {
		s.sess.User = usr
		s.sess.IsAuthenticated = true
	}
	s.sess.SelectedRole = ""
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// ForceLogout clears the session without a backend call. It is registered as
// the coordinator's terminal-failure hook: a failed refresh must
// deauthenticate the user everywhere.
func (s *Store) ForceLogout() {
	s.log.Info("session expired, forcing logout")
	s.clear(context.Background())
}

// SetSelectedRole sets the active role context. Pure local mutation; the role
// must belong to the user's roles.
func (s *Store) SetSelectedRole(ctx context.Context, role string) error {
	s.mu.Lock()
	if s.sess.User == nil || !s.sess.User.HasRole(role) {
		s.mu.Unlock()
		return core.NewValidationError(ErrRoleNotAllowed, core.FieldError{Field: "role", Error: ErrRoleNotAllowed.Error()})
	}
	s.sess.SelectedRole = role
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// ClearSelectedRole drops the active role context.
func (s *Store) ClearSelectedRole(ctx context.Context) {
	s.mu.Lock()
	s.sess.SelectedRole = ""
	s.mu.Unlock()

	s.persist(ctx)
}

func (s *Store) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.User != nil && s.sess.User.HasRole(role)
}

func (s *Store) HasAnyRole(roles ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.User != nil && s.sess.User.HasAnyRole(roles...)
}

func (s *Store) clear(ctx context.Context) {
	s.mu.Lock()
	s.sess.User = nil
	s.sess.IsAuthenticated = false
	s.sess.SelectedRole = ""
	s.mu.Unlock()

	s.persist(ctx)
	if s.coord != nil {
		s.coord.StopProactiveRefresh()
	}
}

// persist writes the durable snapshot; failures are logged, never surfaced.
func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	state := State{
		ClientID:        s.clientID,
		User:            s.sess.User,
		IsAuthenticated: s.sess.IsAuthenticated,
		SelectedRole:    s.sess.SelectedRole,
		UpdatedAt:       time.Now().UTC(),
	}
	s.mu.RUnlock()

	if err := s.repo.SaveState(ctx, state); err != nil {
		s.log.Warn("persisting state failed", err)
	}
}
