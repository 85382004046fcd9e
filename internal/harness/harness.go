package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/roach88/wpedit/internal/activity"
	"github.com/roach88/wpedit/internal/changeset"
	"github.com/roach88/wpedit/internal/editing"
	"github.com/roach88/wpedit/internal/engine"
	"github.com/roach88/wpedit/internal/ir"
	"github.com/roach88/wpedit/internal/statecache"
	"github.com/roach88/wpedit/internal/store"
	"github.com/roach88/wpedit/internal/testutil"
	"github.com/roach88/wpedit/internal/wpcache"
)

// Error codes recorded in TraceEvent.Error and matched by expect.error.
const (
	CodeValidation   = "validation"
	CodeConflict     = "conflict"
	CodeNotFound     = "not_found"
	CodePending      = "pending"
	CodeSaveInFlight = "save_in_flight"
	CodeNoSession    = "no_session"
	CodeError        = "error"
)

var errNoSession = errors.New("harness: no editing session")

// ErrorCode classifies err into one of the Code* constants. A nil error
// yields "".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case changeset.IsValidationError(err):
		return CodeValidation
	case store.IsConflict(err):
		return CodeConflict
	case store.IsNotFound(err), errors.Is(err, wpcache.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, statecache.ErrPending):
		return CodePending
	case errors.Is(err, changeset.ErrSaveInFlight):
		return CodeSaveInFlight
	case errors.Is(err, errNoSession):
		return CodeNoSession
	default:
		return CodeError
	}
}

// Option configures Run.
type Option func(*Harness)

// WithLogger routes service logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithDatabase runs the scenario against the SQLite database at path
// instead of a fresh in-memory one.
func WithDatabase(path string) Option {
	return func(h *Harness) {
		h.dbPath = path
	}
}

// Harness is the scenario execution engine.
// It wires the real store, caches and editing service together with a
// sequence id generator and an inline scheduler.
type Harness struct {
	store    *store.Store
	wps      *wpcache.Cache
	activity *activity.Cache
	sessions *editing.Service
	logger   *slog.Logger
	dbPath   string

	seq   int64    // seq of the last recorded step
	hooks []string // hook failures of the running step
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation unless
// WithDatabase is given.
//
// Execution flow:
//  1. Open the store and seed the work packages
//  2. Build the caches and the editing service
//  3. Run each step, validate its expect clause and record the trace
//  4. Collect the final stored rows and journal counts
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		dbPath: ":memory:",
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := store.Open(h.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	h.store = st

	ctx := context.Background()
	if err := h.seed(ctx, scenario.WorkPackages); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	schema, err := changeset.DefaultSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	h.wps = wpcache.New(st, wpcache.WithLogger(h.logger))
	h.activity = activity.New(st, h.logger)
	h.sessions = editing.New(h.wps, h.activity,
		changeset.Deps{
			Saver:  st,
			Schema: schema,
			Logger: h.logger,
			IDs:    testutil.NewSequenceGenerator("cs"),
		},
		editing.WithLogger(h.logger),
		editing.WithScheduler(engine.NewImmediate(engine.WithLogger(h.logger))),
		editing.WithErrorHandler(func(herr *editing.HookError) {
			h.hooks = append(h.hooks, herr.Step+":"+herr.ID)
		}),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		h.hooks = nil
		stepErr := h.execute(ctx, step)

		event := h.snapshot(step, stepErr)
		result.AddTrace(event)

		for _, msg := range checkExpect(step, event) {
			result.AddError(fmt.Sprintf("steps[%d] %s %s: %s", i, step.Op, step.ID, msg))
		}

		h.logger.Info("step completed",
			"step", i,
			"op", step.Op,
			"id", step.ID,
			"seq", event.Seq,
			"error", event.Error,
		)
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to collect final state: %w", err)
	}
	return result, nil
}

// seed writes the scenario's work packages to the store.
func (h *Harness) seed(ctx context.Context, seeds []SeedWorkPackage) error {
	for i, seed := range seeds {
		wp, err := seed.WorkPackage()
		if err != nil {
			return fmt.Errorf("work_packages[%d]: %w", i, err)
		}
		if err := h.store.PutWorkPackage(ctx, wp); err != nil {
			return fmt.Errorf("work_packages[%d]: %w", i, err)
		}
	}
	return nil
}

// execute runs one step against the service.
func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Op {
	case OpLoad:
		return h.wps.LoadWorkPackage(ctx, step.ID, false)

	case OpRequire:
		_, err := h.sessions.Require(ctx, step.ID)
		return err

	case OpEdit:
		wp, err := h.wps.Require(ctx, step.ID)
		if err != nil {
			return err
		}
		_, err = h.sessions.ChangesetFor(wp, changeset.Events{})
		return err

	case OpSet:
		cs, err := h.session(step.ID)
		if err != nil {
			return err
		}
		v, err := ir.FromAny(step.Value)
		if err != nil {
			return fmt.Errorf("value for %s: %w", step.Field, err)
		}
		return cs.SetValue(step.Field, v)

	case OpReset:
		cs, err := h.session(step.ID)
		if err != nil {
			return err
		}
		cs.ResetField(step.Field)
		return nil

	case OpSave:
		cs, err := h.session(step.ID)
		if err != nil {
			return err
		}
		_, err = cs.Save(ctx)
		return err

	case OpStop:
		h.sessions.StopEditing(step.ID)
		return nil

	case OpReload:
		_, err := h.sessions.Reload(ctx, step.ID)
		return err

	case OpRefresh:
		return h.wps.LoadWorkPackage(ctx, step.ID, true)

	case OpExternal:
		raw, _ := step.Value.(map[string]any)
		changes, err := toObject(raw)
		if err != nil {
			return err
		}
		current, err := h.store.GetWorkPackage(ctx, step.ID)
		if err != nil {
			return err
		}
		_, err = h.store.SaveWorkPackage(ctx, current, changes)
		return err

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// session returns the loaded session of id without loading it.
func (h *Harness) session(id string) (*changeset.Changeset, error) {
	cs, ok := h.sessions.State(id).Value()
	if !ok || cs == nil {
		return nil, fmt.Errorf("%w: %s", errNoSession, id)
	}
	return cs, nil
}

// snapshot records the merged view and the pending edits after a step.
func (h *Harness) snapshot(step Step, stepErr error) TraceEvent {
	h.seq++
	event := TraceEvent{
		Seq:   h.seq,
		Op:    step.Op,
		ID:    step.ID,
		Field: step.Field,
		Error: ErrorCode(stepErr),
		Hooks: h.hooks,
	}
	if stepErr != nil {
		h.logger.Debug("step failed", "op", step.Op, "id", step.ID, "error", stepErr)
	}

	if view, ok := h.sessions.TemporaryEditResource(step.ID).Value(); ok {
		event.View = view
	}
	if cs, ok := h.sessions.State(step.ID).Value(); ok && cs != nil {
		event.Pending = cs.Changes().SortedKeys()
	}
	return event
}

// collect records the final stored rows and journal counts.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	wps, err := h.store.ListWorkPackages(ctx)
	if err != nil {
		return err
	}
	for _, wp := range wps {
		result.Stored[wp.ID] = wp
		journals, err := h.store.ListJournals(ctx, wp.ID)
		if err != nil {
			return err
		}
		if len(journals) > 0 {
			result.Journals[wp.ID] = len(journals)
		}
	}
	return nil
}

// checkExpect compares a recorded event with the step's expect clause and
// returns one message per mismatch.
func checkExpect(step Step, event TraceEvent) []string {
	var msgs []string

	want := step.Expect
	if want == nil {
		want = &ExpectClause{}
	}

	if event.Error != want.Error {
		msgs = append(msgs, fmt.Sprintf("error: expected %q, got %q", want.Error, event.Error))
	}

	if want.Absent && event.View != nil {
		msgs = append(msgs, "view: expected absent, got present")
	}
	if want.LockVersion != nil {
		if event.View == nil {
			msgs = append(msgs, fmt.Sprintf("lock_version: expected %d, view absent", *want.LockVersion))
		} else if event.View.LockVersion != *want.LockVersion {
			msgs = append(msgs, fmt.Sprintf("lock_version: expected %d, got %d", *want.LockVersion, event.View.LockVersion))
		}
	}

	if len(want.Fields) > 0 {
		if event.View == nil {
			return append(msgs, "fields: view absent")
		}
		names := make([]string, 0, len(want.Fields))
		for name := range want.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			expected, err := ir.FromAny(want.Fields[name])
			if err != nil {
				msgs = append(msgs, fmt.Sprintf("fields.%s: %v", name, err))
				continue
			}
			actual, ok := event.View.Field(name)
			if !ok {
				msgs = append(msgs, fmt.Sprintf("fields.%s: missing", name))
				continue
			}
			if !ir.Equal(expected, actual) {
				msgs = append(msgs, fmt.Sprintf("fields.%s: expected %v, got %v", name, ir.ToAny(expected), ir.ToAny(actual)))
			}
		}
	}
	return msgs
}
