package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/wpedit/internal/harness"
)

// SeedFile is the YAML document read by the seed command.
type SeedFile struct {
	WorkPackages []harness.SeedWorkPackage `yaml:"work_packages"`
}

// SeedResult reports the seeded ids.
type SeedResult struct {
	IDs []string `json:"ids"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Write work packages to the database",
		Long: `Write work packages from a YAML file to the database.

Existing rows with the same id are replaced, lock version included.

File format:
  work_packages:
    - id: "5"
      parent_id: "9"
      lock_version: 0
      fields: { subject: "Write docs", status: "new" }

Example:
  wpedit --db ./wpedit.db seed ./work_packages.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
}

// LoadSeedFile reads and validates a seed file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(file.WorkPackages) == 0 {
		return nil, fmt.Errorf("work_packages list is required and must be non-empty")
	}
	for i, wp := range file.WorkPackages {
		if wp.ID == "" {
			return nil, fmt.Errorf("work_packages[%d]: id is required", i)
		}
	}
	return &file, nil
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	file, err := LoadSeedFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid seed file", err)
	}

	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	result := SeedResult{IDs: make([]string, 0, len(file.WorkPackages))}
	for _, seed := range file.WorkPackages {
		wp, err := seed.WorkPackage()
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid seed file", err)
		}
		if err := a.store.PutWorkPackage(ctx, wp); err != nil {
			return WrapExitError(ExitFailure, "failed to seed", err)
		}
		a.logger.Debug("work package seeded", "id", wp.ID, "lock_version", wp.LockVersion)
		result.IDs = append(result.IDs, wp.ID)
	}

	return opts.formatter(cmd).Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "Seeded %d work package(s) into %s\n", len(result.IDs), opts.Database)
	})
}
