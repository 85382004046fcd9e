package changeset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wpedit/internal/ir"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestDefaultSchemaFields(t *testing.T) {
	s, err := DefaultSchema()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"subject", "description", "status", "assignee",
		"estimated_minutes", "percentage_done", "tags",
	}, s.Fields())
}

func TestLoadSchema_Errors(t *testing.T) {
	_, err := LoadSchema("bad.cue", []byte(`fields: {`))
	assert.Error(t, err)

	_, err = LoadSchema("nofields.cue", []byte(`other: {a: int}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing fields struct")
}

func TestValidate(t *testing.T) {
	s, err := LoadSchema("test.cue", []byte(`fields: {
	name:  string
	count: int & >0
}`))
	require.NoError(t, err)

	assert.NoError(t, s.Validate(ir.Object{"name": ir.String("a"), "count": ir.Int(2)}))

	err = s.Validate(ir.Object{"name": ir.String("a"), "count": ir.Int(0)})
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "count", ve.Field)

	err = s.ValidateField("name", ir.Bool(true))
	assert.True(t, IsValidationError(err))
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7GeneratorIsTimeOrdered(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
