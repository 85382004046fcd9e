package harness

import (
	"github.com/roach88/wpedit/internal/ir"
	"github.com/roach88/wpedit/internal/resource"
)

// TraceEvent records one executed step and the state it left behind.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Op    string `json:"op"`
	ID    string `json:"id"`
	Field string `json:"field,omitempty"`

	// Error is the step's error code, empty on success.
	Error string `json:"error,omitempty"`

	// View is the merged view after the step; nil when absent.
	View *resource.WorkPackage `json:"view"`

	// Pending lists the fields the session holds edits for, sorted.
	Pending []string `json:"pending,omitempty"`

	// Hooks lists save hook failures raised by the step as "step:id".
	Hooks []string `json:"hooks,omitempty"`
}

// toValue converts the event for canonical JSON serialization.
func (e TraceEvent) toValue() ir.Object {
	obj := ir.Object{
		"seq":  ir.Int(e.Seq),
		"op":   ir.String(e.Op),
		"id":   ir.String(e.ID),
		"view": ir.Null{},
	}
	if e.Field != "" {
		obj["field"] = ir.String(e.Field)
	}
	if e.Error != "" {
		obj["error"] = ir.String(e.Error)
	}
	if e.View != nil {
		obj["view"] = ir.Object{
			"lock_version": ir.Int(e.View.LockVersion),
			"fields":       e.View.Fields.Clone(),
		}
	}
	if len(e.Pending) > 0 {
		pending := make(ir.Array, len(e.Pending))
		for i, f := range e.Pending {
			pending[i] = ir.String(f)
		}
		obj["pending"] = pending
	}
	if len(e.Hooks) > 0 {
		hooks := make(ir.Array, len(e.Hooks))
		for i, h := range e.Hooks {
			hooks[i] = ir.String(h)
		}
		obj["hooks"] = hooks
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step matched its expect clause.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stored holds the final stored work packages, keyed by id.
	Stored map[string]*resource.WorkPackage `json:"stored,omitempty"`

	// Journals holds the number of journal rows per work package id.
	Journals map[string]int `json:"journals,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Stored:   make(map[string]*resource.WorkPackage),
		Journals: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a trace event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
