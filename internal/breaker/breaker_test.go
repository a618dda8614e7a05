package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(t *testing.T, clock *fakeClock, changes *[]string) *Breaker {
	t.Helper()
	b, err := New(Settings{
		Name:                 "payment",
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 0.5,
		OpenTimeout:          30 * time.Second,
		HalfOpenMaxCalls:     2,
		Now:                  clock.Now,
		OnStateChange: func(name string, from, to State) {
			if changes != nil {
				*changes = append(*changes, from.String()+"->"+to.String())
			}
		},
	})
	require.NoError(t, err)
	return b
}

func call(t *testing.T, b *Breaker, success bool) {
	t.Helper()
	done, err := b.Allow()
	require.NoError(t, err)
	done(success)
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var changes []string
	b := newTestBreaker(t, clock, &changes)

	for i := 0; i < 4; i++ {
		call(t, b, false)
	}
	// below MinimumCalls: stays closed even at 100% failures
	assert.Equal(t, StateClosed, b.State())

	call(t, b, false)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, []string{"CLOSED->OPEN"}, changes)

	_, err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_StaysClosedBelowRate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newTestBreaker(t, clock, nil)

	for i := 0; i < 10; i++ {
		call(t, b, i%3 != 0) // 4 failures of 10
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{Calls: 10, Failures: 4}, b.Counts())
}

func TestBreaker_SlidingWindowEvictsOldOutcomes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newTestBreaker(t, clock, nil)

	for i := 0; i < 6; i++ {
		call(t, b, true)
	}
	for i := 0; i < 4; i++ {
		call(t, b, false)
	}
	require.Equal(t, Counts{Calls: 10, Failures: 4}, b.Counts())

	// a full window of successes evicts every failure
	for i := 0; i < 10; i++ {
		call(t, b, true)
	}
	assert.Equal(t, Counts{Calls: 10, Failures: 0}, b.Counts())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var changes []string
	b := newTestBreaker(t, clock, &changes)
	for i := 0; i < 5; i++ {
		call(t, b, false)
	}

	clock.Advance(29 * time.Second)
	_, err := b.Allow()
	assert.ErrorIs(t, err, ErrOpen)

	clock.Advance(time.Second)
	d1, err := b.Allow()
	require.NoError(t, err)
	d2, err := b.Allow()
	require.NoError(t, err)
	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrTooManyTrials)
	assert.Equal(t, StateHalfOpen, b.State())

	d1(true)
	assert.Equal(t, StateHalfOpen, b.State())
	d2(true)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, changes)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newTestBreaker(t, clock, nil)
	for i := 0; i < 5; i++ {
		call(t, b, false)
	}
	clock.Advance(30 * time.Second)

	done, err := b.Allow()
	require.NoError(t, err)
	done(false)
	assert.Equal(t, StateOpen, b.State())

	// cool-down restarts from the reopen
	clock.Advance(10 * time.Second)
	_, err = b.Allow()
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_StaleOutcomeIgnored(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newTestBreaker(t, clock, nil)

	slow, err := b.Allow()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		call(t, b, false)
	}
	require.Equal(t, StateOpen, b.State())
	clock.Advance(30 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	// admitted while CLOSED, finishes during HALF_OPEN: must not count as a trial
	slow(true)
	slow(true)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestNew_ValidatesSettings(t *testing.T) {
	_, err := New(Settings{WindowSize: 5, MinimumCalls: 6, FailureRateThreshold: 0.5, OpenTimeout: time.Second, HalfOpenMaxCalls: 1})
	assert.Error(t, err)
	_, err = New(Settings{WindowSize: 5, MinimumCalls: 5, FailureRateThreshold: 0, OpenTimeout: time.Second, HalfOpenMaxCalls: 1})
	assert.Error(t, err)
}

func TestBreaker_ConcurrentCalls(t *testing.T) {
	b, err := New(Settings{WindowSize: 100, MinimumCalls: 100, FailureRateThreshold: 1, OpenTimeout: time.Minute, HalfOpenMaxCalls: 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				done, err := b.Allow()
				if err != nil {
					return
				}
				done(j%2 == 0)
			}
		}()
	}
	wg.Wait()

	c := b.Counts()
	assert.Equal(t, 100, c.Calls)
	assert.Equal(t, StateClosed, b.State())
}
