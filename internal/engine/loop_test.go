package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func startLoop(t *testing.T, l *Loop) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestLoop_RunsJobsInOrder(t *testing.T) {
	l := New(WithLogger(quietLogger()))

	var mu sync.Mutex
	var ran []string
	for _, key := range []string{"9", "10", "11"} {
		key := key
		require.True(t, l.Enqueue(Job{Name: "reload_parent", Key: key, Run: func(context.Context) error {
			mu.Lock()
			ran = append(ran, key)
			mu.Unlock()
			return nil
		}}))
	}

	done := startLoop(t, l)
	l.Stop()
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, []string{"9", "10", "11"}, ran)
	assert.Equal(t, Stats{Executed: 3}, l.Stats())
}

func TestLoop_StampsSeq(t *testing.T) {
	var seqs []int64
	l := New(
		WithLogger(quietLogger()),
		WithSeqStart(41),
		WithFailureHandler(func(_ Job, err *JobError) { seqs = append(seqs, err.Seq) }),
	)
	assert.Equal(t, int64(41), l.Seq())

	fail := func(context.Context) error { return errors.New("boom") }
	l.Enqueue(Job{Name: "a", Run: fail})
	l.Enqueue(Job{Name: "b", Run: fail})
	assert.Equal(t, int64(43), l.Seq())

	done := startLoop(t, l)
	l.Stop()
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, []int64{42, 43}, seqs)
}

func TestLoop_SeqsAreUniqueAcrossGoroutines(t *testing.T) {
	var (
		mu   sync.Mutex
		seqs = make(map[int64]bool)
	)
	l := New(
		WithLogger(quietLogger()),
		WithFailureHandler(func(_ Job, err *JobError) {
			mu.Lock()
			seqs[err.Seq] = true
			mu.Unlock()
		}),
	)

	const producers, perProducer = 10, 50
	fail := func(context.Context) error { return errors.New("boom") }
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				l.Enqueue(Job{Name: "reload_parent", Run: fail})
			}
		}()
	}
	wg.Wait()

	done := startLoop(t, l)
	l.Stop()
	require.NoError(t, waitRun(t, done))

	assert.Len(t, seqs, producers*perProducer)
	assert.True(t, seqs[1])
	assert.True(t, seqs[producers*perProducer])
}

func TestLoop_LogsAndContinuesOnFailure(t *testing.T) {
	var logs bytes.Buffer
	var failures []*JobError
	l := New(
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithFailureHandler(func(_ Job, err *JobError) { failures = append(failures, err) }),
	)

	fetchErr := errors.New("fetch failed")
	after := false
	l.Enqueue(Job{Name: "reload_parent", Key: "9", Run: func(context.Context) error { return fetchErr }})
	l.Enqueue(Job{Name: "explode", Key: "10", Run: func(context.Context) error { panic("kaboom") }})
	l.Enqueue(Job{Name: "after", Key: "11", Run: func(context.Context) error { after = true; return nil }})

	done := startLoop(t, l)
	l.Stop()
	require.NoError(t, waitRun(t, done))

	assert.True(t, after, "jobs after a failure still run")
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0], fetchErr)
	assert.Equal(t, ErrCodeJobFailed, failures[0].Code)
	assert.True(t, IsPanicError(failures[1]))
	assert.Equal(t, Stats{Executed: 3, Failed: 2}, l.Stats())
	assert.Contains(t, logs.String(), "job failed")
	assert.Contains(t, logs.String(), "key=9")
}

func TestLoop_EnqueueAfterStopIsRejected(t *testing.T) {
	l := New(WithLogger(quietLogger()))
	done := startLoop(t, l)
	l.Stop()
	require.NoError(t, waitRun(t, done))

	assert.False(t, l.Enqueue(Job{Name: "late"}))
	assert.Equal(t, 0, l.Pending())
}

func TestLoop_ContextCancel(t *testing.T) {
	l := New(WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	assert.ErrorIs(t, waitRun(t, done), context.Canceled)
	assert.False(t, l.Enqueue(Job{Name: "late"}))
}

func TestLoop_ProcessesJobsEnqueuedWhileRunning(t *testing.T) {
	l := New(WithLogger(quietLogger()))
	done := startLoop(t, l)

	ran := make(chan string, 2)
	l.Enqueue(Job{Name: "first", Run: func(context.Context) error { ran <- "first"; return nil }})
	assert.Equal(t, "first", <-ran)

	l.Enqueue(Job{Name: "second", Run: func(context.Context) error { ran <- "second"; return nil }})
	assert.Equal(t, "second", <-ran)

	l.Stop()
	require.NoError(t, waitRun(t, done))
}

func TestImmediate(t *testing.T) {
	var failures []*JobError
	im := NewImmediate(
		WithLogger(quietLogger()),
		WithFailureHandler(func(_ Job, err *JobError) { failures = append(failures, err) }),
	)

	ran := false
	assert.True(t, im.Enqueue(Job{Name: "ok", Run: func(context.Context) error { ran = true; return nil }}))
	assert.True(t, ran, "job runs before Enqueue returns")

	assert.True(t, im.Enqueue(Job{Name: "panic", Key: "9", Run: func(context.Context) error { panic("x") }}))
	assert.True(t, im.Enqueue(Job{Name: "nil run"}))

	require.Len(t, failures, 1)
	assert.Equal(t, int64(2), failures[0].Seq)
	assert.Equal(t, "9", failures[0].Key)
}

func TestDetached(t *testing.T) {
	var (
		mu       sync.Mutex
		failures []*JobError
	)
	d := NewDetached(
		WithLogger(quietLogger()),
		WithFailureHandler(func(_ Job, err *JobError) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}),
	)

	gate := make(chan struct{})
	finished := make(chan struct{})
	assert.True(t, d.Enqueue(Job{Name: "slow", Run: func(context.Context) error {
		<-gate
		close(finished)
		return nil
	}}))
	assert.True(t, d.Enqueue(Job{Name: "panic", Key: "9", Run: func(context.Context) error { panic("x") }}))

	select {
	case <-finished:
		t.Fatal("Enqueue waited for the job")
	default:
	}

	close(gate)
	d.Wait()
	<-finished

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.Equal(t, int64(2), failures[0].Seq)
	assert.True(t, IsPanicError(failures[0]))
}
