package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescerSharesOneExecution(t *testing.T) {
	c := newCoalescer[int](time.Second)
	var executions atomic.Int32
	release := make(chan struct{})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]int, callers)
	coalesced := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, shared, err := c.Do(context.Background(), "k", func() (int, error) {
				executions.Add(1)
				<-release
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
			coalesced[i] = shared
		}(i)
	}

	// Give the goroutines a moment to pile onto the same key.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), executions.Load())
	leaders := 0
	for i := range results {
		assert.Equal(t, 42, results[i])
		if !coalesced[i] {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)
}

func TestCoalescerPropagatesLeaderError(t *testing.T) {
	c := newCoalescer[string](time.Second)
	boom := errors.New("boom")

	_, _, err := c.Do(context.Background(), "k", func() (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	// The failed entry is gone; the next caller executes fresh.
	v, shared, err := c.Do(context.Background(), "k", func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "ok", v)
}

func TestCoalescerWaiterTimesOut(t *testing.T) {
	c := newCoalescer[int](30 * time.Millisecond)
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _, _ = c.Do(context.Background(), "k", func() (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	_, shared, err := c.Do(context.Background(), "k", func() (int, error) {
		t.Fatal("waiter must not execute")
		return 0, nil
	})
	assert.True(t, shared)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNilCoalescerRunsEveryCaller(t *testing.T) {
	var c *coalescer[int]
	var executions atomic.Int32

	for i := 0; i < 3; i++ {
		v, shared, err := c.Do(context.Background(), "k", func() (int, error) {
			executions.Add(1)
			return 7, nil
		})
		require.NoError(t, err)
		assert.False(t, shared)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, int32(3), executions.Load())
}

func TestStampedeTrackerCounts(t *testing.T) {
	st := newStampedeTracker()

	assert.Equal(t, 1, st.RecordMiss("k"))
	assert.Equal(t, 2, st.RecordMiss("k"))
	assert.Equal(t, 1, st.RecordMiss("other"))

	st.RecordResolved("k")
	assert.Equal(t, 2, st.RecordMiss("k"))

	st.RecordResolved("k")
	st.RecordResolved("k")
	st.RecordResolved("k")
	// Resolving below zero is a no-op.
	st.RecordResolved("k")
	assert.Equal(t, 1, st.RecordMiss("k"))
}
