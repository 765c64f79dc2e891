package token

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trezcool/shule/core"
)

// Refresh triggers, as reported to the Observer.
const (
	TriggerTimer   = "timer"
	TriggerRequest = "request"
)

type (
	// RefreshFunc performs the actual credential renewal against the backend.
	// Any error (transport or non-2xx) counts as refresh failure.
	RefreshFunc func(ctx context.Context) error

	// Observer is notified of every settled refresh attempt.
	Observer interface {
		ObserveRefresh(trigger string, success bool)
	}

	// Coordinator owns the proactive refresh timer and serializes refresh
	// attempts: at most one renewal call is in flight at any time, and all
	// concurrent callers share its outcome.
	Coordinator struct {
		refresh  RefreshFunc
		interval time.Duration
		log      core.Logger
		observer Observer

		group singleflight.Group

		mu        sync.Mutex
		active    bool
		stop      chan struct{}
		onFailure func()
	}
)

func NewCoordinator(refresh RefreshFunc, interval time.Duration, log core.Logger) *Coordinator {
	return &Coordinator{
		refresh:  refresh,
		interval: interval,
		log:      log,
	}
}

// OnTerminalFailure registers the hook fired when a refresh fails. The session
// owner registers its teardown here instead of being imported directly, which
// keeps the construction order acyclic.
func (c *Coordinator) OnTerminalFailure(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// SetObserver attaches a metrics observer.
func (c *Coordinator) SetObserver(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = obs
}

// Active reports whether the proactive refresh timer is running.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// StartProactiveRefresh starts the recurring refresh timer. Idempotent: a
// second call while active is a no-op with a warning, never a second timer.
func (c *Coordinator) StartProactiveRefresh() {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		c.log.Warn("proactive refresh already started")
		return
	}
	c.active = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	c.log.Debug("proactive refresh started")
	go c.run(stop)
}

// StopProactiveRefresh stops the timer if running. Safe to call when inactive.
func (c *Coordinator) StopProactiveRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	close(c.stop)
	c.stop = nil
	c.active = false
	c.log.Debug("proactive refresh stopped")
}

func (c *Coordinator) run(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.refreshTokens(context.Background(), TriggerTimer)
		case <-stop:
			return
		}
	}
}

// RefreshTokens renews the access credential, returning true on success.
// Concurrent callers collapse into a single network call and share its
// outcome. A failed refresh is terminal: the timer is stopped and the
// registered teardown hook fires; no retry, no backoff.
func (c *Coordinator) RefreshTokens(ctx context.Context) bool {
	return c.refreshTokens(ctx, TriggerRequest)
}

func (c *Coordinator) refreshTokens(ctx context.Context, trigger string) bool {
	v, _, _ := c.group.Do("refresh", func() (interface{}, error) {
		if err := c.refresh(ctx); err != nil {
			c.log.Info("token refresh failed, tearing down session", err)
			c.StopProactiveRefresh()
			c.mu.Lock()
			fn := c.onFailure
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
			return false, nil
		}
		return true, nil
	})
	success := v.(bool)
	c.mu.Lock()
	obs := c.observer
	c.mu.Unlock()
	if obs != nil {
		obs.ObserveRefresh(trigger, success)
	}
	return success
}
