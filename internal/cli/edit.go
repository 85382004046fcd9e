package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wpedit/internal/changeset"
	"github.com/roach88/wpedit/internal/ir"
	"github.com/roach88/wpedit/internal/resource"
	"github.com/roach88/wpedit/internal/store"
	"github.com/roach88/wpedit/internal/wpcache"
)

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Set    []string // field=value pairs
	DryRun bool     // print the merged view without saving
}

// EditResult reports an edit.
type EditResult struct {
	Changes     ir.Object             `json:"changes"`
	WorkPackage *resource.WorkPackage `json:"work_package"`
	Saved       bool                  `json:"saved"`
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit and save a work package",
		Long: `Open an editing session for a work package, apply field edits and save.

Values are parsed as JSON when possible (50, null, true, ["a"]) and taken
as plain strings otherwise. Edits are validated against the work package
schema before anything is saved.

Exit codes:
  0 - Saved (or printed with --dry-run)
  1 - Unknown id, invalid value or stale lock version
  2 - Command error

Examples:
  wpedit edit 5 --set subject="Write docs" --set percentage_done=50
  wpedit edit 5 --set status=closed --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field=value edit (repeatable)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the merged view without saving")

	return cmd
}

// parseAssignment splits field=value and parses the value.
func parseAssignment(s string) (string, ir.Value, error) {
	field, raw, ok := strings.Cut(s, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", nil, fmt.Errorf("invalid edit %q: expected field=value", s)
	}
	if v, err := ir.Parse([]byte(raw)); err == nil {
		return field, v, nil
	}
	return field, ir.String(raw), nil
}

func runEdit(opts *EditOptions, id string, cmd *cobra.Command) error {
	type assignment struct {
		field string
		value ir.Value
	}
	assignments := make([]assignment, 0, len(opts.Set))
	for _, s := range opts.Set {
		field, v, err := parseAssignment(s)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --set", err)
		}
		assignments = append(assignments, assignment{field, v})
	}

	a, err := openApp(cmd.Context(), opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	f := opts.formatter(cmd)
	ctx := cmd.Context()

	cs, err := a.sessions.Require(ctx, id)
	if err != nil {
		if store.IsNotFound(err) || errors.Is(err, wpcache.ErrNotFound) {
			return f.Fail(ExitFailure, CodeNotFound, fmt.Sprintf("work package %s not found", id), err)
		}
		return f.Fail(ExitFailure, CodeLoadFailed, fmt.Sprintf("failed to load %s", id), err)
	}

	for _, as := range assignments {
		if err := cs.SetValue(as.field, as.value); err != nil {
			if changeset.IsValidationError(err) {
				return f.Fail(ExitFailure, CodeValidation, err.Error(), err)
			}
			return f.Fail(ExitFailure, CodeSaveFailed, err.Error(), err)
		}
	}

	result := EditResult{Changes: cs.Changes()}

	if opts.DryRun {
		view, _ := a.sessions.TemporaryEditResource(id).Value()
		a.sessions.StopEditing(id)
		result.WorkPackage = view
		return f.Render(result, func(w io.Writer) {
			fmt.Fprintf(w, "Dry run: %d change(s), nothing saved\n", len(result.Changes))
			writeWorkPackage(w, view)
		})
	}

	saved, err := cs.Save(ctx)
	if err != nil {
		if store.IsConflict(err) {
			return f.Fail(ExitFailure, CodeConflict,
				fmt.Sprintf("work package %s was changed by someone else", id), err)
		}
		if changeset.IsValidationError(err) {
			return f.Fail(ExitFailure, CodeValidation, err.Error(), err)
		}
		return f.Fail(ExitFailure, CodeSaveFailed, fmt.Sprintf("failed to save %s", id), err)
	}
	result.WorkPackage = saved
	result.Saved = len(result.Changes) > 0

	return f.Render(result, func(w io.Writer) {
		if result.Saved {
			fmt.Fprintf(w, "Saved %d change(s)\n", len(result.Changes))
		} else {
			fmt.Fprintln(w, "No changes")
		}
		writeWorkPackage(w, saved)
	})
}
