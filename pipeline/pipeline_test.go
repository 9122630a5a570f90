package pipeline

import (
	"image"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rboyer503/pi-server/config"
	"github.com/rboyer503/pi-server/encode"
)

func gradient(seed int) image.Image {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(seed + i)
	}
	return img
}

func testConfig() *config.Config {
	return &config.Config{
		Device:          "/dev/video0",
		Width:           640,
		Height:          480,
		FPS:             20,
		MonitorPort:     0,
		CommandPort:     0,
		TokenPath:       "/nonexistent/token",
		FrameSkip:       2,
		KernelSize:      5,
		MotionThreshold: 40,
		MotionGated:     true,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return New(testConfig(), zerolog.Nop())
}

func TestAdvanceModeCyclesAllModes(t *testing.T) {
	m := newTestManager(t)
	initial := m.Mode()

	seen := map[encode.Mode]bool{initial: true}
	for i := 0; i < int(encode.ModeMax)-1; i++ {
		m.AdvanceMode()
		seen[m.Mode()] = true
	}
	assert.Len(t, seen, int(encode.ModeMax), "every mode is reachable")

	m.AdvanceMode()
	assert.Equal(t, initial, m.Mode(), "a full cycle returns to the initial mode")
}

func TestAdvanceModeIdempotencePairs(t *testing.T) {
	m := newTestManager(t)
	start := m.Mode()

	m.AdvanceMode()
	m.AdvanceMode()
	want := (start + 2) % encode.ModeMax
	assert.Equal(t, want, m.Mode(), "two mode commands advance exactly two positions")
}

func TestKernelSizeClampsAtBounds(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, 5, m.KernelSize())

	// Page defaults to blur; param1 adjusts kernel size in steps of two.
	for i := 0; i < 20; i++ {
		m.AdjustParam(1, true)
	}
	assert.Equal(t, kernelMax, m.KernelSize())
	m.AdjustParam(1, true)
	assert.Equal(t, kernelMax, m.KernelSize(), "upper bound refuses further steps")

	for i := 0; i < 20; i++ {
		m.AdjustParam(1, false)
	}
	assert.Equal(t, kernelMin, m.KernelSize())
	m.AdjustParam(1, false)
	assert.Equal(t, kernelMin, m.KernelSize(), "lower bound refuses further steps")
}

func TestKernelSizeStaysOdd(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 10; i++ {
		m.AdjustParam(1, true)
		assert.Equal(t, 1, m.KernelSize()%2)
		m.AdjustParam(1, false)
		assert.Equal(t, 1, m.KernelSize()%2)
	}
}

func TestMotionThresholdClampsAtBounds(t *testing.T) {
	m := newTestManager(t)

	// Switch to the motion parameter page.
	m.AdvancePage()

	for i := 0; i < 30; i++ {
		m.AdjustParam(1, true)
	}
	assert.Equal(t, thresholdMax, m.gate.Threshold())
	m.AdjustParam(1, true)
	assert.Equal(t, thresholdMax, m.gate.Threshold())

	for i := 0; i < 30; i++ {
		m.AdjustParam(1, false)
	}
	assert.Equal(t, thresholdMin, m.gate.Threshold())
	m.AdjustParam(1, false)
	assert.Equal(t, thresholdMin, m.gate.Threshold())
}

func TestAdvancePageWraps(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, pageBlur, paramPage(m.page.Load()))

	m.AdvancePage()
	assert.Equal(t, pageMotion, paramPage(m.page.Load()))
	m.AdvancePage()
	assert.Equal(t, pageBlur, paramPage(m.page.Load()))
}

func TestParamAdjustIgnoredOnWrongPage(t *testing.T) {
	m := newTestManager(t)
	m.AdvancePage() // motion page

	before := m.KernelSize()
	m.AdjustParam(2, true)
	assert.Equal(t, before, m.KernelSize())
}

func TestShutdownExitsCleanButInterruptDoesNot(t *testing.T) {
	m := newTestManager(t)
	m.Shutdown()
	assert.True(t, m.IsInterrupted())
	assert.Equal(t, ErrNone, m.interruptCode(), "operator shutdown is not an error")

	m2 := newTestManager(t)
	m2.Terminate()
	assert.Equal(t, ErrInterrupt, m2.interruptCode())
}

func TestSetErrorFirstCodeWins(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, ErrNone, m.ErrorCode())

	m.setError(ErrSendFail)
	m.setError(ErrInterrupt)
	assert.Equal(t, ErrSendFail, m.ErrorCode())
}

func TestInitialModeIsMotionDetect(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, encode.ModeMotion, m.Mode())
}

func TestDebugArchiveSelectionWraps(t *testing.T) {
	var a debugArchive

	// Empty archive: selection stays put and no frame is available.
	_, ok := a.selectedFrame()
	assert.False(t, ok)
	assert.Equal(t, 0, a.next())

	a.add(gradient(1))
	a.add(gradient(2))
	a.add(gradient(3))

	assert.Equal(t, 1, a.next())
	assert.Equal(t, 2, a.next())
	assert.Equal(t, 0, a.next(), "selection wraps past the newest record")
	assert.Equal(t, 2, a.prev(), "selection wraps backwards to the newest record")

	img, ok := a.selectedFrame()
	assert.True(t, ok)
	assert.NotNil(t, img)
}

func TestDebugArchiveOverwritesOldest(t *testing.T) {
	var a debugArchive
	for i := 0; i < maxDebugRecords+5; i++ {
		a.add(gradient(i))
	}
	assert.True(t, a.full)
	assert.Equal(t, maxDebugRecords-1, a.maxIndex())
}
