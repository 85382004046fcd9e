// Package harness runs editing scenarios against a real store and records
// the merged view of every step for golden comparison.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	work_packages:
//	  - id: "1"
//	    parent_id: "9"
//	    lock_version: 0
//	    fields: { subject: "Task", status: "new" }
//	steps:
//	  - op: require
//	    id: "1"
//	  - op: set
//	    id: "1"
//	    field: subject
//	    value: "Task (edited)"
//	    expect:
//	      fields: { subject: "Task (edited)" }
//	  - op: save
//	    id: "1"
//	    expect:
//	      lock_version: 1
//
// # Operations
//
//   - load: load the canonical work package into the work package cache
//   - require: load (or reuse) the editing session of id
//   - edit: start editing the cached work package of id
//   - set / reset: change or revert one field of the session
//   - save: save the session through the store
//   - stop: discard pending edits
//   - reload: replace the session with a fresh one
//   - refresh: force a reload of the canonical work package
//   - external: save value (a field map) directly to the store, as another
//     client would, bypassing every cache
//
// # Expectations
//
// expect.error names the error code a step must fail with (see ErrorCode).
// A step without expect.error must succeed. expect.fields is a subset match
// against the merged view after the step; expect.absent requires no view.
//
// # Golden Files
//
// RunWithGolden serialises the trace as canonical JSON and compares it with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
//
// Changeset ids come from a sequence generator, so traces are stable.
package harness
