package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wpedit/internal/ir"
	"github.com/roach88/wpedit/internal/resource"
)

// Scenario defines an editing scenario.
// It seeds the store with work packages and then runs steps against a fresh
// editing service, recording the merged view after each one.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// WorkPackages are written to the store before the first step.
	WorkPackages []SeedWorkPackage `yaml:"work_packages"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// SeedWorkPackage is a work package row written before the steps run.
type SeedWorkPackage struct {
	ID          string         `yaml:"id"`
	ParentID    string         `yaml:"parent_id,omitempty"`
	LockVersion int64          `yaml:"lock_version,omitempty"`
	Fields      map[string]any `yaml:"fields"`
}

// WorkPackage converts the seed into a work package.
func (s SeedWorkPackage) WorkPackage() (*resource.WorkPackage, error) {
	fields, err := toObject(s.Fields)
	if err != nil {
		return nil, fmt.Errorf("work package %s: %w", s.ID, err)
	}
	return resource.New(s.ID, s.ParentID, s.LockVersion, fields), nil
}

// toObject converts YAML-parsed fields into an ir.Object.
func toObject(fields map[string]any) (ir.Object, error) {
	obj := make(ir.Object, len(fields))
	for k, raw := range fields {
		v, err := ir.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = v
	}
	return obj, nil
}

// Step is one operation against the editing service.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// ID is the work package the step targets.
	ID string `yaml:"id"`

	// Field is the field name for set and reset.
	Field string `yaml:"field,omitempty"`

	// Value is the new field value for set, or a field map for external.
	Value any `yaml:"value,omitempty"`

	// Expect validates the step outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Absent requires the merged view to be absent after the step.
	Absent bool `yaml:"absent,omitempty"`

	// LockVersion is the expected lock version of the merged view.
	LockVersion *int64 `yaml:"lock_version,omitempty"`

	// Fields is a subset match against the merged view's fields.
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Step operations.
const (
	OpLoad     = "load"
	OpRequire  = "require"
	OpEdit     = "edit"
	OpSet      = "set"
	OpReset    = "reset"
	OpSave     = "save"
	OpStop     = "stop"
	OpReload   = "reload"
	OpRefresh  = "refresh"
	OpExternal = "external"
)

var knownOps = map[string]bool{
	OpLoad: true, OpRequire: true, OpEdit: true, OpSet: true, OpReset: true,
	OpSave: true, OpStop: true, OpReload: true, OpRefresh: true, OpExternal: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Unknown fields are rejected so that "step:" instead of "steps:" fails loudly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.WorkPackages))
	for i, wp := range s.WorkPackages {
		if wp.ID == "" {
			return fmt.Errorf("work_packages[%d]: id is required", i)
		}
		if seen[wp.ID] {
			return fmt.Errorf("work_packages[%d]: duplicate id %q", i, wp.ID)
		}
		seen[wp.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, st *Step) error {
	if st.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !knownOps[st.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	if st.ID == "" {
		return fmt.Errorf("steps[%d]: id is required", index)
	}

	switch st.Op {
	case OpSet:
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for set", index)
		}
	case OpReset:
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for reset", index)
		}
	case OpExternal:
		if _, ok := st.Value.(map[string]any); !ok {
			return fmt.Errorf("steps[%d]: value must be a field map for external", index)
		}
	}

	if st.Expect != nil && st.Expect.Absent && len(st.Expect.Fields) > 0 {
		return fmt.Errorf("steps[%d].expect: absent and fields are mutually exclusive", index)
	}
	return nil
}
