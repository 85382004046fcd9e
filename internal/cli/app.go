package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/wpedit/internal/activity"
	"github.com/roach88/wpedit/internal/changeset"
	"github.com/roach88/wpedit/internal/editing"
	"github.com/roach88/wpedit/internal/engine"
	"github.com/roach88/wpedit/internal/store"
	"github.com/roach88/wpedit/internal/wpcache"
)

// app is the wired editing stack over one database.
//
// Parent reloads run on a background engine.Loop; Close stops the loop,
// waits for queued reloads and closes the store.
type app struct {
	store    *store.Store
	wps      *wpcache.Cache
	activity *activity.Cache
	sessions *editing.Service
	loop     *engine.Loop
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan error
}

// openApp opens the database, checks that it answers and starts the
// reload loop.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	logger := opts.logger()

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "database is not reachable", err)
	}

	schema, err := changeset.DefaultSchema()
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	concurrency := opts.Config.LoadConcurrency
	wps := wpcache.New(st, wpcache.WithLogger(logger), wpcache.WithConcurrency(concurrency))
	acts := activity.New(st, logger)
	loop := engine.New(engine.WithLogger(logger))

	a := &app{
		store:    st,
		wps:      wps,
		activity: acts,
		loop:     loop,
		logger:   logger,
		done:     make(chan error, 1),
	}
	a.sessions = editing.New(wps, acts,
		changeset.Deps{Saver: st, Schema: schema, Logger: logger},
		editing.WithScheduler(loop),
		editing.WithLogger(logger),
		editing.WithConcurrency(concurrency),
	)

	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go func() {
		a.done <- loop.Run(loopCtx)
	}()
	return a, nil
}

// Close drains the reload loop and closes the store.
func (a *app) Close() error {
	a.loop.Stop()
	err := <-a.done
	a.cancel()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	stats := a.loop.Stats()
	a.logger.Debug("reload loop stopped", "executed", stats.Executed, "failed", stats.Failed)

	if closeErr := a.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
