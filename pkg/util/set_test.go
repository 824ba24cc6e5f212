package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/foreman/pkg/util"
)

func TestSetOfDuplicates(t *testing.T) {
	s := util.SetOf("a", "b", "a", "c", "b")
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("z"))
}

func TestSetAddRemove(t *testing.T) {
	s := util.Set[int]{}
	assert.True(t, s.IsEmpty())

	s.Add(1)
	s.Add(2)
	s.Add(1)
	assert.Equal(t, 2, s.Len())

	s.Remove(1)
	assert.False(t, s.Contains(1))
	assert.True(t, s.Contains(2))
}

func TestStateTransitions(t *testing.T) {
	tr := util.StateTransitions[string]{
		"open":   util.SetOf("closed"),
		"closed": {},
	}

	assert.True(t, tr.CanTransition("open", "closed"))
	assert.False(t, tr.CanTransition("closed", "open"))
	assert.False(t, tr.CanTransition("missing", "open"))
	assert.True(t, tr.IsTerminal("closed"))
	assert.False(t, tr.IsTerminal("open"))
	assert.False(t, tr.IsTerminal("missing"))
}
