package editing

import (
	"context"

	"github.com/roach88/wpedit/internal/changeset"
	"github.com/roach88/wpedit/internal/engine"
)

func (s *Service) defaultEvents() changeset.Events {
	return changeset.Events{
		OnSaved:   s.onSaved,
		OnUpdated: s.onUpdated,
	}
}

// onUpdated republishes the changeset so session observers recompute.
func (s *Service) onUpdated(cs *changeset.Changeset) {
	wp := cs.WorkPackage()
	if wp == nil || wp.ID == "" {
		return
	}
	s.sessions.UpdateValue(wp.ID, cs)
}

// onSaved propagates a successful save. Each step runs on its own: a
// failure or panic in one is reported and the next still runs.
func (s *Service) onSaved(ctx context.Context, cs *changeset.Changeset) {
	wp := cs.WorkPackage()
	if wp == nil {
		return
	}

	if s.activity != nil {
		s.isolate(StepClearActivity, wp.ID, func() error {
			s.activity.Clear(wp.ID)
			return nil
		})
	}

	if wp.HasParent() {
		s.isolate(StepReloadParent, wp.ParentID, func() error {
			return s.scheduleParentReload(wp.ParentID)
		})
	}

	s.isolate(StepUpdateCanonical, wp.ID, func() error {
		s.source.UpdateWorkPackage(wp)
		return nil
	})

	s.logger.Debug("save propagated", "id", wp.ID, "lock_version", wp.LockVersion, "parent", wp.ParentID)
}

// scheduleParentReload enqueues a forced reload of parentID. The caller
// does not wait for it; a failed reload is reported from the job.
func (s *Service) scheduleParentReload(parentID string) error {
	ok := s.scheduler.Enqueue(engine.Job{
		Name: StepReloadParent,
		Key:  parentID,
		Run: func(ctx context.Context) error {
			err := s.source.LoadWorkPackage(ctx, parentID, true)
			if err != nil && s.onError != nil {
				s.onError(&HookError{Step: StepReloadParent, ID: parentID, Err: err})
			}
			return err
		},
	})
	if !ok {
		return ErrSchedulerClosed
	}
	return nil
}

// isolate runs one hook step, converting a panic into an error, and
// reports failures.
func (s *Service) isolate(step, id string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r}
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}

	herr := &HookError{Step: step, ID: id, Err: err}
	s.logger.Error("save hook step failed", "step", step, "id", id, "error", err)
	if s.onError != nil {
		s.onError(herr)
	}
}
