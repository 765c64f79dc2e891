package token

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type testLogger struct {
	mu    sync.Mutex
	warns []string
	infos []string
}

func (l *testLogger) Debug(msg string, args ...interface{}) {}
func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}
func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *testLogger) Error(msg string, args ...interface{}) {}
func (l *testLogger) Fatal(msg string, args ...interface{}) {}

func (l *testLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

func TestCoordinator_RefreshTokens_singleFlight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	refresh := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}
	coord := NewCoordinator(refresh, time.Hour, &testLogger{})

	const n = 10
	results := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- coord.RefreshTokens(context.Background())
		}()
	}

	// let all callers park on the in-flight call before it settles
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "concurrent callers must share one renewal call")
	for ok := range results {
		assert.True(t, ok, "every caller shares the successful outcome")
	}
}

func TestCoordinator_StartProactiveRefresh_idempotent(t *testing.T) {
	log := &testLogger{}
	coord := NewCoordinator(func(ctx context.Context) error { return nil }, time.Hour, log)

	coord.StartProactiveRefresh()
	assert.True(t, coord.Active())

	coord.StartProactiveRefresh() // no second timer
	assert.True(t, coord.Active())
	assert.Equal(t, 1, log.warnCount())

	coord.StopProactiveRefresh()
	assert.False(t, coord.Active())

	coord.StopProactiveRefresh() // safe when inactive
	assert.False(t, coord.Active())
}

func TestCoordinator_StartProactiveRefresh_restartable(t *testing.T) {
	coord := NewCoordinator(func(ctx context.Context) error { return nil }, time.Hour, &testLogger{})

	coord.StartProactiveRefresh()
	coord.StopProactiveRefresh()
	coord.StartProactiveRefresh()
	assert.True(t, coord.Active())
	coord.StopProactiveRefresh()
}

func TestCoordinator_refreshFailure_isTerminal(t *testing.T) {
	var torndown int32
	coord := NewCoordinator(func(ctx context.Context) error {
		return errors.New("refresh rejected")
	}, time.Hour, &testLogger{})
	coord.OnTerminalFailure(func() { atomic.AddInt32(&torndown, 1) })

	coord.StartProactiveRefresh()
	ok := coord.RefreshTokens(context.Background())

	assert.False(t, ok)
	assert.False(t, coord.Active(), "failed refresh must stop the timer")
	assert.EqualValues(t, 1, atomic.LoadInt32(&torndown), "failed refresh must fire the teardown hook")
}

func TestCoordinator_timerTriggersRefresh(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	coord := NewCoordinator(func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(done)
		}
		return nil
	}, 10*time.Millisecond, &testLogger{})

	coord.StartProactiveRefresh()
	defer coord.StopProactiveRefresh()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never triggered a refresh")
	}
}

type testObserver struct {
	mu       sync.Mutex
	triggers []string
	outcomes []bool
}

func (o *testObserver) ObserveRefresh(trigger string, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.triggers = append(o.triggers, trigger)
	o.outcomes = append(o.outcomes, success)
}

func TestCoordinator_observer(t *testing.T) {
	fail := errors.New("nope")
	var err error
	coord := NewCoordinator(func(ctx context.Context) error { return err }, time.Hour, &testLogger{})
	obs := &testObserver{}
	coord.SetObserver(obs)

	assert.True(t, coord.RefreshTokens(context.Background()))
	err = fail
	assert.False(t, coord.RefreshTokens(context.Background()))

	assert.Equal(t, []string{TriggerRequest, TriggerRequest}, obs.triggers)
	assert.Equal(t, []bool{true, false}, obs.outcomes)
}
