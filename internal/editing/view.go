package editing

import (
	"github.com/roach88/wpedit/internal/changeset"
	"github.com/roach88/wpedit/internal/reactive"
	"github.com/roach88/wpedit/internal/resource"
)

// TemporaryEditResource returns the merged view of id: the session's edited
// resource while the canonical work package is present and the session has
// pending edits, the canonical work package otherwise.
//
// Without a canonical work package the view is absent, even when a session
// holds edits. The view recomputes synchronously whenever either input
// changes and does not load anything; use Require to load the session.
//
// The emitted work packages are shared snapshots and must not be mutated.
// Edit through ChangesetFor.
func (s *Service) TemporaryEditResource(id string) reactive.Observable[*resource.WorkPackage] {
	return reactive.Combine[*resource.WorkPackage, *changeset.Changeset, *resource.WorkPackage](
		s.source.State(id), s.sessions.State(id), mergeView)
}

func mergeView(wp *resource.WorkPackage, wpOK bool, cs *changeset.Changeset, csOK bool) (*resource.WorkPackage, bool) {
	if !wpOK || wp == nil {
		return nil, false
	}
	if csOK && cs != nil {
		if r := cs.Resource(); r != nil {
			return r, true
		}
	}
	return wp, true
}
