package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Job is one unit of background work.
type Job struct {
	// Name identifies the kind of job in logs, e.g. "reload_parent".
	Name string

	// Key is the entity the job works on.
	Key string

	// Seq is stamped by the scheduler on Enqueue.
	Seq int64

	// Run does the work.
	Run func(ctx context.Context) error
}

// Scheduler accepts fire-and-forget jobs. Enqueue returns false if the job
// was rejected.
type Scheduler interface {
	Enqueue(job Job) bool
}

// FailureFunc observes job failures after they are logged.
type FailureFunc func(job Job, err *JobError)

// Option configures a Loop or Immediate.
type Option func(*settings)

type settings struct {
	logger    *slog.Logger
	seqStart  int64
	onFailure FailureFunc

	// seq is the last stamped job seq.
	seq *atomic.Int64
}

func newSettings(opts []Option) settings {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	s.seq = new(atomic.Int64)
	s.seq.Store(s.seqStart)
	return s
}

// stamp sets the job's seq to the next value.
func (s settings) stamp(job *Job) {
	job.Seq = s.seq.Add(1)
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSeqStart makes the first enqueued job carry seq start+1. Seqs start
// at 1 by default.
func WithSeqStart(start int64) Option {
	return func(s *settings) {
		s.seqStart = start
	}
}

// WithFailureHandler registers fn to observe job failures.
func WithFailureHandler(fn FailureFunc) Option {
	return func(s *settings) {
		s.onFailure = fn
	}
}

// Stats counts executed jobs.
type Stats struct {
	Executed int64
	Failed   int64
}

// Loop is the single-writer job loop.
//
// Thread-safety model:
//   - Enqueue, Stop, Stats: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Loop struct {
	queue *jobQueue
	cfg   settings

	mu    sync.Mutex
	stats Stats
}

// New creates a loop. Call Run to start processing.
func New(opts ...Option) *Loop {
	return &Loop{
		queue: newJobQueue(),
		cfg:   newSettings(opts),
	}
}

// Enqueue stamps job with the next seq and queues it.
// Returns false once the loop has been stopped.
func (l *Loop) Enqueue(job Job) bool {
	l.cfg.stamp(&job)
	ok := l.queue.Enqueue(job)
	if !ok {
		l.cfg.logger.Warn("job rejected: loop stopped", "job", job.Name, "key", job.Key, "seq", job.Seq)
	}
	return ok
}

// Seq returns the seq of the most recently enqueued job, 0 before any.
func (l *Loop) Seq() int64 {
	return l.cfg.seq.Load()
}

// Pending returns the number of queued jobs.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

// Run executes jobs until ctx is cancelled or Stop is called.
//
// On Stop, jobs already queued run before Run returns nil. On context
// cancellation Run returns ctx.Err() without draining.
//
// A job failure is logged with the job's context and processing continues.
func (l *Loop) Run(ctx context.Context) error {
	l.cfg.logger.Info("job loop starting")

	for {
		if job, ok := l.queue.TryDequeue(); ok {
			l.execute(ctx, job)
			continue
		}

		select {
		case <-ctx.Done():
			l.cfg.logger.Info("job loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// A closed queue keeps the channel readable; exit once drained.
			if l.queue.Len() == 0 && l.closed() {
				l.cfg.logger.Info("job loop stopping: queue closed")
				return nil
			}
		}
	}
}

func (l *Loop) closed() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

// Stop closes the queue. Run returns after draining queued jobs.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Stats returns a snapshot of the execution counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) execute(ctx context.Context, job Job) {
	err := runJob(ctx, job)

	l.mu.Lock()
	l.stats.Executed++
	if err != nil {
		l.stats.Failed++
	}
	l.mu.Unlock()

	if err != nil {
		l.cfg.report(job, err)
	}
}

// Immediate runs jobs inline in the caller's goroutine.
//
// Thread-safety: safe for concurrent use; jobs from different goroutines
// may run concurrently.
type Immediate struct {
	cfg settings
}

// NewImmediate creates an inline scheduler.
func NewImmediate(opts ...Option) *Immediate {
	return &Immediate{cfg: newSettings(opts)}
}

// Enqueue runs job before returning. It always returns true.
func (im *Immediate) Enqueue(job Job) bool {
	im.cfg.stamp(&job)
	if err := runJob(context.Background(), job); err != nil {
		im.cfg.report(job, err)
	}
	return true
}

// Detached runs each job in its own goroutine. Enqueue returns without
// waiting for the job.
//
// Thread-safety: safe for concurrent use.
type Detached struct {
	cfg settings
	wg  sync.WaitGroup
}

// NewDetached creates a scheduler that starts a goroutine per job.
func NewDetached(opts ...Option) *Detached {
	return &Detached{cfg: newSettings(opts)}
}

// Enqueue starts job and returns. It always returns true.
func (d *Detached) Enqueue(job Job) bool {
	d.cfg.stamp(&job)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := runJob(context.Background(), job); err != nil {
			d.cfg.report(job, err)
		}
	}()
	return true
}

// Wait blocks until every started job has returned.
func (d *Detached) Wait() {
	d.wg.Wait()
}

// runJob executes job, converting errors and panics into *JobError.
func runJob(ctx context.Context, job Job) (jerr *JobError) {
	defer func() {
		if r := recover(); r != nil {
			jerr = &JobError{Code: ErrCodeJobPanicked, Job: job.Name, Key: job.Key, Seq: job.Seq, Panic: r}
		}
	}()

	if job.Run == nil {
		return nil
	}
	if err := job.Run(ctx); err != nil {
		return &JobError{Code: ErrCodeJobFailed, Job: job.Name, Key: job.Key, Seq: job.Seq, Err: err}
	}
	return nil
}

func (s settings) report(job Job, err *JobError) {
	s.logger.Error("job failed",
		"error", err,
		"job", job.Name,
		"key", job.Key,
		"seq", job.Seq,
		"code", string(err.Code),
	)
	if s.onFailure != nil {
		s.onFailure(job, err)
	}
}
