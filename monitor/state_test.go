package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatchetAdvancesOnHigherRank(t *testing.T) {
	next, changed := Ratchet(StateIndexing, StateCatalogPutting)
	assert.True(t, changed)
	assert.Equal(t, StateCatalogPutting, next)
}

func TestRatchetIgnoresEqualOrLowerRank(t *testing.T) {
	next, changed := Ratchet(StateCatalogPutting, StateIndexing)
	assert.False(t, changed)
	assert.Equal(t, StateCatalogPutting, next)

	next, changed = Ratchet(StateCatalogPutting, StateCatalogPutting)
	assert.False(t, changed)
	assert.Equal(t, StateCatalogPutting, next)
}

func TestRatchetAlwaysAcceptsFailed(t *testing.T) {
	next, changed := Ratchet(StateComplete, StateFailed)
	assert.True(t, changed)
	assert.Equal(t, StateFailed, next)
}

func TestRollupIsMinimumOfNonTerminalStates(t *testing.T) {
	got := Rollup([]State{StateIndexing, StateCatalogPutting, StateComplete})
	assert.Equal(t, StateIndexing, got)
}

func TestRollupCompleteWhenAllSubsComplete(t *testing.T) {
	got := Rollup([]State{StateComplete, StateComplete})
	assert.Equal(t, StateComplete, got)
}

func TestRollupFailedWhenAnySubFailedAndAllTerminal(t *testing.T) {
	got := Rollup([]State{StateComplete, StateFailed})
	assert.Equal(t, StateFailed, got)
}

func TestRollupEmptyFilelistIsImmediatelyComplete(t *testing.T) {
	got := Rollup(nil)
	assert.Equal(t, StateComplete, got)
}
