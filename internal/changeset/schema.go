package changeset

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/wpedit/internal/ir"
)

//go:embed schema/workpackage.cue
var defaultSchemaSource []byte

var defaultSchema = sync.OnceValues(func() (*Schema, error) {
	return LoadSchema("workpackage.cue", defaultSchemaSource)
})

// DefaultSchema returns the built-in work package field schema.
func DefaultSchema() (*Schema, error) {
	return defaultSchema()
}

// Schema validates field edits against CUE constraints declared under a
// top-level `fields` struct.
//
// Thread-safety: safe for concurrent use. CUE values are not, so every
// evaluation runs under the schema mutex.
type Schema struct {
	mu     sync.Mutex
	ctx    *cue.Context
	fields cue.Value
}

// LoadSchema compiles a CUE schema source.
func LoadSchema(filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", formatCUEError(err))
	}
	fields := v.LookupPath(cue.ParsePath("fields"))
	if !fields.Exists() {
		return nil, fmt.Errorf("compile schema: %s: missing fields struct", filename)
	}
	return &Schema{ctx: ctx, fields: fields}, nil
}

// Fields returns the field names the schema declares, in declaration order.
func (s *Schema) Fields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	iter, err := s.fields.Fields()
	if err != nil {
		return nil
	}
	for iter.Next() {
		names = append(names, iter.Selector().String())
	}
	return names
}

// ValidateField checks one field value. Unknown fields and values that do
// not unify with the field's constraint yield a *ValidationError.
func (s *Schema) ValidateField(field string, v ir.Value) error {
	if v == nil {
		v = ir.Null{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	constraint := s.fields.LookupPath(cue.MakePath(cue.Str(field)))
	if !constraint.Exists() {
		return &ValidationError{Field: field, Message: "unknown field"}
	}

	encoded := s.ctx.Encode(ir.ToAny(v))
	if err := encoded.Err(); err != nil {
		return &ValidationError{Field: field, Message: err.Error()}
	}
	if err := constraint.Unify(encoded).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Field: field, Message: formatCUEError(err).Error()}
	}
	return nil
}

// Validate checks every entry of changes and returns the first failure in
// key order.
func (s *Schema) Validate(changes ir.Object) error {
	for _, k := range changes.SortedKeys() {
		if err := s.ValidateField(k, changes[k]); err != nil {
			return err
		}
	}
	return nil
}

// formatCUEError keeps the first message of a CUE error list.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errs[0]
}
