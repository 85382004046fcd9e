package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wpedit/internal/ir"
	"github.com/roach88/wpedit/internal/resource"
	"github.com/roach88/wpedit/internal/statecache"
)

// ShowEntry is one work package with its journals.
type ShowEntry struct {
	WorkPackage *resource.WorkPackage `json:"work_package"`
	Journals    []resource.Journal    `json:"journals"`
}

// ShowResult holds the resolved work packages and the ids that failed.
type ShowResult struct {
	WorkPackages []ShowEntry `json:"work_packages"`
	Failed       []string    `json:"failed,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>...",
		Short: "Show work packages and their journals",
		Long: `Load work packages and print them with their journal entries.

Ids load concurrently and independently: ids that fail are reported while
the others are still shown.

Exit codes:
  0 - All ids loaded
  1 - One or more ids failed to load
  2 - Command error

Example:
  wpedit show 5 9
  wpedit show 5 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args, cmd)
		},
	}
}

func runShow(opts *RootOptions, ids []string, cmd *cobra.Command) error {
	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	loaded, loadErr := a.wps.RequireAll(ctx, ids)

	result := ShowResult{
		WorkPackages: []ShowEntry{},
		Failed:       statecache.FailedIDs(loadErr),
	}
	for _, id := range ids {
		wp, ok := loaded[id]
		if !ok || containsEntry(result.WorkPackages, id) {
			continue
		}
		journals, err := a.activity.Journals(ctx, id)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to load journals of %s", id), err)
		}
		result.WorkPackages = append(result.WorkPackages, ShowEntry{WorkPackage: wp, Journals: journals})
	}

	f := opts.formatter(cmd)
	if err := f.Render(result, func(w io.Writer) { writeShowText(w, result) }); err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		f.VerboseLog("load error: %v", loadErr)
		return WrapExitError(ExitFailure,
			fmt.Sprintf("failed to load %s", strings.Join(result.Failed, ", ")), loadErr)
	}
	return nil
}

func containsEntry(entries []ShowEntry, id string) bool {
	for _, e := range entries {
		if e.WorkPackage.ID == id {
			return true
		}
	}
	return false
}

func writeShowText(w io.Writer, result ShowResult) {
	for i, entry := range result.WorkPackages {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeWorkPackage(w, entry.WorkPackage)
		if len(entry.Journals) > 0 {
			fmt.Fprintln(w, "  journals:")
			for _, j := range entry.Journals {
				fmt.Fprintf(w, "    v%d %s\n", j.Version, strings.Join(j.Changed, ", "))
			}
		}
	}
	for _, id := range result.Failed {
		fmt.Fprintf(w, "✗ %s: not loaded\n", id)
	}
}

// writeWorkPackage prints a work package with its fields in key order.
func writeWorkPackage(w io.Writer, wp *resource.WorkPackage) {
	fmt.Fprintf(w, "#%s %s\n", wp.ID, wp.Subject())
	if wp.HasParent() {
		fmt.Fprintf(w, "  parent: %s\n", wp.ParentID)
	}
	fmt.Fprintf(w, "  lock_version: %d\n", wp.LockVersion)
	fmt.Fprintln(w, "  fields:")
	for _, k := range wp.Fields.SortedKeys() {
		fmt.Fprintf(w, "    %s: %s\n", k, formatValue(wp.Fields[k]))
	}
}

func formatValue(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
