package reactive

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func preferB(a int, aOK bool, b string, bOK bool) (string, bool) {
	if aOK && bOK {
		return b, true
	}
	if aOK {
		return strconv.Itoa(a), true
	}
	return "", false
}

func TestCombine_ValueRecomputes(t *testing.T) {
	a := NewState[int]()
	b := NewState[string]()
	c := Combine[int, string, string](a, b, preferB)

	_, ok := c.Value()
	assert.False(t, ok)

	a.PutValue(1)
	v, ok := c.Value()
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	b.PutValue("x")
	v, _ = c.Value()
	assert.Equal(t, "x", v)
}

func TestCombine_SubscribeEmitsOncePerUpstreamChange(t *testing.T) {
	a := NewState[int]()
	b := NewState[string]()
	got := record[string](t, Combine[int, string, string](a, b, preferB))

	a.PutValue(1)
	b.PutValue("x")
	b.Clear()
	a.Clear()

	assert.Equal(t, []emission[string]{
		{"", false}, // initial
		{"1", true},
		{"x", true},
		{"1", true},
		{"", false},
	}, *got)
}

func TestCombine_CancelStopsBothInputs(t *testing.T) {
	a := NewState[int]()
	b := NewState[string]()
	calls := 0
	cancel := Combine[int, string, string](a, b, preferB).Subscribe(func(string, bool) { calls++ })

	assert.Equal(t, 1, a.Subscribers())
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	a.PutValue(1)
	b.PutValue("y")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, a.Subscribers())
	assert.Equal(t, 0, b.Subscribers())
}
