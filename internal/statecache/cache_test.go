package statecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wpedit/internal/reactive"
)

var errNotFound = errors.New("not found")

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// countingLoader returns "value-<id>" and fails for ids listed in fail.
type countingLoader struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	gate  chan struct{}
}

func newCountingLoader(fail ...string) *countingLoader {
	l := &countingLoader{calls: map[string]int{}, fail: map[string]bool{}}
	for _, id := range fail {
		l.fail[id] = true
	}
	return l
}

func (l *countingLoader) load(_ context.Context, id string) (string, error) {
	l.mu.Lock()
	l.calls[id]++
	fail := l.fail[id]
	gate := l.gate
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return "", fmt.Errorf("fetch %s: %w", id, errNotFound)
	}
	return "value-" + id, nil
}

func (l *countingLoader) count(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[id]
}

func (l *countingLoader) setFail(id string, fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail[id] = fail
}

func TestRequire_LoadsOnceAndCaches(t *testing.T) {
	l := newCountingLoader()
	c := New(l.load)

	assert.Equal(t, reactive.StatusPristine, c.Status("1"))

	v, err := c.Require(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "value-1", v)

	v, err = c.Require(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "value-1", v)

	assert.Equal(t, 1, l.count("1"))
	assert.Equal(t, reactive.StatusLoaded, c.Status("1"))
	assert.Equal(t, []string{"1"}, c.IDs())
}

func TestRequire_ConcurrentCallersShareOneLoad(t *testing.T) {
	l := newCountingLoader()
	l.gate = make(chan struct{})
	c := New(l.load)

	const callers = 20
	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Require(context.Background(), "7")
			if err == nil && v == "value-7" {
				ok.Add(1)
			}
		}()
	}

	// Wait until the first load is in flight, then let it finish.
	require.Eventually(t, func() bool { return l.count("7") == 1 }, timeout, tick)
	assert.Equal(t, reactive.StatusPending, c.Status("7"))
	close(l.gate)
	wg.Wait()

	assert.Equal(t, int32(callers), ok.Load())
	assert.Equal(t, 1, l.count("7"), "pending id must not trigger a second fetch")
}

func TestRequire_FailureLeavesSlotRetryable(t *testing.T) {
	l := newCountingLoader("3")
	c := New(l.load)

	_, err := c.Require(context.Background(), "3")
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "3", le.ID)
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, reactive.StatusPristine, c.Status("3"))

	l.setFail("3", false)
	v, err := c.Require(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "value-3", v)
	assert.Equal(t, 2, l.count("3"))
}

func TestRequire_EmptyID(t *testing.T) {
	c := New(newCountingLoader().load)
	_, err := c.Require(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestReload_ReplacesValueAndNotifies(t *testing.T) {
	version := 0
	c := New(func(_ context.Context, id string) (int, error) {
		version++
		return version, nil
	})

	_, err := c.Require(context.Background(), "1")
	require.NoError(t, err)

	var seen []int
	cancel := c.State("1").Subscribe(func(v int, ok bool) {
		if ok {
			seen = append(seen, v)
		}
	})
	defer cancel()

	v, err := c.Reload(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestReload_FailureKeepsLoadedValue(t *testing.T) {
	l := newCountingLoader()
	c := New(l.load)

	_, err := c.Require(context.Background(), "1")
	require.NoError(t, err)

	l.setFail("1", true)
	_, err = c.Reload(context.Background(), "1")
	require.Error(t, err)

	v, ok := c.Value("1")
	require.True(t, ok)
	assert.Equal(t, "value-1", v)
}

func TestEnsure(t *testing.T) {
	c := New(newCountingLoader().load)
	creates := 0
	create := func() string {
		creates++
		return fmt.Sprintf("created-%d", creates)
	}

	v, created, err := c.Ensure("1", create)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "created-1", v)

	v, created, err = c.Ensure("1", create)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "created-1", v)
	assert.Equal(t, 1, creates)

	_, _, err = c.Ensure("", create)
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestEnsure_PendingSlot(t *testing.T) {
	l := newCountingLoader()
	l.gate = make(chan struct{})
	c := New(l.load)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Require(context.Background(), "1")
	}()
	require.Eventually(t, func() bool { return l.count("1") == 1 }, timeout, tick)

	_, _, err := c.Ensure("1", func() string { return "never" })
	assert.ErrorIs(t, err, ErrPending)

	close(l.gate)
	<-done
	v, _ := c.Value("1")
	assert.Equal(t, "value-1", v)
}

func TestFetch_MarksPristineSlotPending(t *testing.T) {
	l := newCountingLoader()
	l.gate = make(chan struct{})
	c := New(l.load)

	// A caller that reaches the load after an earlier failure reset the
	// slot to pristine.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.fetch(context.Background(), "1", false)
	}()
	require.Eventually(t, func() bool { return l.count("1") == 1 }, timeout, tick)

	assert.Equal(t, reactive.StatusPending, c.Status("1"))
	_, created, err := c.Ensure("1", func() string { return "created" })
	assert.ErrorIs(t, err, ErrPending)
	assert.False(t, created)

	close(l.gate)
	<-done
	v, ok := c.Value("1")
	require.True(t, ok)
	assert.Equal(t, "value-1", v)
}

func TestRequire_UpdateDuringLoadWins(t *testing.T) {
	l := newCountingLoader()
	l.gate = make(chan struct{})
	c := New(l.load)

	var got string
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, _ = c.Require(context.Background(), "1")
	}()
	require.Eventually(t, func() bool { return l.count("1") == 1 }, timeout, tick)

	c.UpdateValue("1", "pushed")
	close(l.gate)
	<-done

	assert.Equal(t, "pushed", got)
	v, _ := c.Value("1")
	assert.Equal(t, "pushed", v, "the loader must not overwrite a pushed value")
}

func TestReload_UpdateDuringLoadWins(t *testing.T) {
	l := newCountingLoader()
	c := New(l.load)
	_, err := c.Require(context.Background(), "1")
	require.NoError(t, err)

	l.mu.Lock()
	l.gate = make(chan struct{})
	gate := l.gate
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Reload(context.Background(), "1")
	}()
	require.Eventually(t, func() bool { return l.count("1") == 2 }, timeout, tick)

	c.UpdateValue("1", "saved")
	close(gate)
	<-done

	v, _ := c.Value("1")
	assert.Equal(t, "saved", v)
}

func TestRequire_ClearDuringLoadIsKept(t *testing.T) {
	l := newCountingLoader()
	l.gate = make(chan struct{})
	c := New(l.load)

	var (
		got string
		err error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err = c.Require(context.Background(), "1")
	}()
	require.Eventually(t, func() bool { return l.count("1") == 1 }, timeout, tick)

	c.Clear("1")
	close(l.gate)
	<-done

	require.NoError(t, err)
	assert.Equal(t, "value-1", got)
	assert.Equal(t, reactive.StatusPristine, c.Status("1"), "a clear during the load is not undone")

	_, err = c.Require(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 2, l.count("1"), "the next Require refetches")
}

func TestRequireAll_IsolatesFailures(t *testing.T) {
	l := newCountingLoader("2")
	c := New(l.load, WithConcurrency(2))

	got, err := c.RequireAll(context.Background(), []string{"1", "2", "3", "1"})
	require.Error(t, err)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, []string{"2"}, be.IDs())
	assert.Equal(t, []string{"2"}, FailedIDs(err))
	assert.ErrorIs(t, err, errNotFound)

	assert.Equal(t, map[string]string{"1": "value-1", "3": "value-3"}, got)
	assert.Equal(t, reactive.StatusLoaded, c.Status("1"))
	assert.Equal(t, reactive.StatusPristine, c.Status("2"))
	assert.Equal(t, reactive.StatusLoaded, c.Status("3"))
	assert.Equal(t, 1, l.count("1"), "duplicate ids load once")
}

func TestRequireAll_AllSucceed(t *testing.T) {
	c := New(newCountingLoader().load, WithConcurrency(0))

	got, err := c.RequireAll(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Nil(t, FailedIDs(err))
}

func TestUpdateValueAndClear(t *testing.T) {
	c := New(newCountingLoader().load)

	var seen []string
	cancel := c.State("1").Subscribe(func(v string, ok bool) {
		if !ok {
			v = "<absent>"
		}
		seen = append(seen, v)
	})
	defer cancel()

	c.UpdateValue("1", "pushed")
	c.Clear("1")
	c.Clear("unknown")

	assert.Equal(t, []string{"<absent>", "pushed", "<absent>"}, seen)
	assert.Equal(t, reactive.StatusPristine, c.Status("1"))
}
