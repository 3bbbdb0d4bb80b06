package mode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector returns a fixed mode without touching the host.
type stubDetector struct {
	mode Mode
	err  error
}

func (d *stubDetector) Detect() (Mode, error) {
	return d.mode, d.err
}

func TestController_Defaults(t *testing.T) {
	c := NewController(384)

	state := c.State()
	assert.Equal(t, Balanced, state.Mode)
	assert.Equal(t, 384, state.Dim)
	assert.True(t, state.Quantized)
	assert.Equal(t, 4, state.BatchSize)
	assert.False(t, state.AutoDetected)
	assert.False(t, state.Switching)
}

func TestController_Set(t *testing.T) {
	c := NewController(384)

	trans, err := c.Set(Performance)
	require.NoError(t, err)
	assert.Equal(t, Balanced, trans.Previous)
	assert.Equal(t, Performance, trans.Current)

	state := c.State()
	assert.Equal(t, Performance, state.Mode)
	assert.False(t, state.Quantized)
	assert.Equal(t, 16, state.BatchSize)

	_, err = c.Set(Mode(99))
	assert.Error(t, err)
}

func TestController_SetRunsSwitchHook(t *testing.T) {
	c := NewController(384)

	var gotPrev, gotNext Mode
	var gotSettings Settings
	c.OnSwitch(func(previous, next Mode, settings Settings) error {
		gotPrev, gotNext, gotSettings = previous, next, settings
		return nil
	})

	_, err := c.Set(Eco)
	require.NoError(t, err)
	assert.Equal(t, Balanced, gotPrev)
	assert.Equal(t, Eco, gotNext)
	assert.Equal(t, 1, gotSettings.BatchSize)
	assert.False(t, c.State().Switching)
}

func TestController_SetHookFailureAborts(t *testing.T) {
	c := NewController(384)
	c.OnSwitch(func(previous, next Mode, settings Settings) error {
		return errors.New("convert failed")
	})

	_, err := c.Set(Performance)
	require.Error(t, err)
	assert.Equal(t, Balanced, c.Mode(), "mode unchanged after aborted switch")
}

func TestController_AutoDetect(t *testing.T) {
	c := NewController(384, WithDetector(&stubDetector{mode: Performance}))

	detected, err := c.AutoDetect()
	require.NoError(t, err)
	assert.Equal(t, Performance, detected)

	state := c.State()
	assert.Equal(t, Performance, state.Mode)
	assert.True(t, state.AutoDetected)
}

func TestController_AutoDetect_OverrideWins(t *testing.T) {
	c := NewController(384,
		WithMode(Eco),
		WithDetector(&stubDetector{mode: Performance}))

	detected, err := c.AutoDetect()
	require.NoError(t, err)
	assert.Equal(t, Performance, detected, "detection result still reported")
	assert.Equal(t, Eco, c.Mode(), "pinned mode not displaced")
}

func TestController_AutoDetect_DetectorError(t *testing.T) {
	c := NewController(384, WithDetector(&stubDetector{err: errors.New("no stats")}))

	_, err := c.AutoDetect()
	assert.Error(t, err)
	assert.Equal(t, Balanced, c.Mode())
}

func TestController_BatchSizeOverride(t *testing.T) {
	c := NewController(384, WithBatchSize(2))

	assert.Equal(t, 2, c.Settings().BatchSize)

	_, err := c.Set(Performance)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Settings().BatchSize, "override survives mode changes")
}

func TestController_HandleOOM(t *testing.T) {
	c := NewController(384, WithMode(Performance))

	trans, switched := c.HandleOOM()
	assert.True(t, switched)
	assert.Equal(t, Performance, trans.Previous)
	assert.Equal(t, Eco, trans.Current)
	assert.Equal(t, Eco, c.Mode())

	// Already in eco: nothing to downgrade to
	_, switched = c.HandleOOM()
	assert.False(t, switched)
}

func TestController_HandleOOM_HookFailureStillDowngrades(t *testing.T) {
	c := NewController(384, WithMode(Performance))
	c.OnSwitch(func(previous, next Mode, settings Settings) error {
		return errors.New("drop failed")
	})

	_, switched := c.HandleOOM()
	assert.True(t, switched)
	assert.Equal(t, Eco, c.Mode())
}
