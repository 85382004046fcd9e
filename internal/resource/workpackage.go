// Package resource defines the work package entity and its journal records.
//
// A WorkPackage is never mutated in place once shared: every With* helper
// returns a copy, so a snapshot held by a cache or a subscriber stays valid.
package resource

import (
	"fmt"

	"github.com/roach88/wpedit/internal/ir"
)

// Well-known field names.
const (
	FieldSubject     = "subject"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldAssignee    = "assignee"
	FieldEstimate    = "estimated_minutes"
	FieldDone        = "percentage_done"
)

// WorkPackage is the edited entity: an id, an optional parent id, the lock
// version used for optimistic locking, and its field values.
type WorkPackage struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id,omitempty"`
	LockVersion int64     `json:"lock_version"`
	Fields      ir.Object `json:"fields"`
}

// New builds a work package holding a copy of fields.
func New(id, parentID string, lockVersion int64, fields ir.Object) *WorkPackage {
	return &WorkPackage{
		ID:          id,
		ParentID:    parentID,
		LockVersion: lockVersion,
		Fields:      fields.Clone(),
	}
}

// HasParent reports whether the work package references a parent.
func (wp *WorkPackage) HasParent() bool {
	return wp != nil && wp.ParentID != ""
}

// Field returns the value of a field.
func (wp *WorkPackage) Field(name string) (ir.Value, bool) {
	if wp == nil {
		return nil, false
	}
	v, ok := wp.Fields[name]
	return v, ok
}

// Subject returns the subject field as a string, or "" if missing.
func (wp *WorkPackage) Subject() string {
	v, _ := wp.Field(FieldSubject)
	s, _ := v.(ir.String)
	return string(s)
}

// Clone returns a deep copy.
func (wp *WorkPackage) Clone() *WorkPackage {
	if wp == nil {
		return nil
	}
	return New(wp.ID, wp.ParentID, wp.LockVersion, wp.Fields)
}

// WithChanges returns a copy with changes overlaid on the fields.
// Identity and lock version are preserved.
func (wp *WorkPackage) WithChanges(changes ir.Object) *WorkPackage {
	out := wp.Clone()
	if out.Fields == nil {
		out.Fields = make(ir.Object, len(changes))
	}
	for k, v := range changes {
		out.Fields[k] = ir.Clone(v)
	}
	return out
}

// WithLockVersion returns a copy carrying a new lock version.
func (wp *WorkPackage) WithLockVersion(v int64) *WorkPackage {
	out := wp.Clone()
	out.LockVersion = v
	return out
}

// Digest is the content digest of the work package (id, parent, lock
// version and fields).
func (wp *WorkPackage) Digest() (string, error) {
	if wp == nil {
		return "", fmt.Errorf("digest: nil work package")
	}
	obj := ir.Object{
		"id":           ir.String(wp.ID),
		"lock_version": ir.Int(wp.LockVersion),
		"fields":       wp.Fields,
	}
	if wp.ParentID != "" {
		obj["parent_id"] = ir.String(wp.ParentID)
	}
	return ir.Digest(ir.DomainWorkPackage, obj)
}

// Equal reports whether two work packages carry the same identity, lock
// version and field values.
func Equal(a, b *WorkPackage) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID &&
		a.ParentID == b.ParentID &&
		a.LockVersion == b.LockVersion &&
		ir.Equal(a.Fields, b.Fields)
}
