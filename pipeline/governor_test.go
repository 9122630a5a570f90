package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGovernorSkipsEveryOtherFrame(t *testing.T) {
	g := newGovernor(2)

	// No source drops: admit every second frame.
	assert.False(t, g.observe(0))
	assert.True(t, g.observe(0))
	assert.False(t, g.rearm(), "on cadence")

	assert.False(t, g.observe(0))
	assert.True(t, g.observe(0))
	assert.False(t, g.rearm())
}

func TestGovernorCreditsSourceDrops(t *testing.T) {
	g := newGovernor(2)

	// A frame arriving with one source drop pays for both.
	assert.True(t, g.observe(1))
	assert.False(t, g.rearm())
}

func TestGovernorReportsFallingBehind(t *testing.T) {
	g := newGovernor(2)

	// Three source drops overshoot the budget: the counter goes negative
	// and rearm reports the pipeline fell behind.
	assert.True(t, g.observe(3))
	assert.True(t, g.rearm())

	// The banked deficit admits the next frame immediately.
	assert.True(t, g.observe(0))
}

func TestGovernorClampsBacklog(t *testing.T) {
	g := newGovernor(2)

	assert.True(t, g.observe(50))
	assert.True(t, g.rearm())
	assert.Equal(t, frameBacklogMin, g.next, "backlog floors at the clamp")
}

func TestGovernorResetBacklog(t *testing.T) {
	g := newGovernor(1)
	assert.True(t, g.observe(10))
	assert.True(t, g.rearm())
	g.resetBacklog()
	assert.Equal(t, 1, g.next)
}
