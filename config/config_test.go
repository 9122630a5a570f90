package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/dev/video0", cfg.Device)
	assert.Equal(t, uint32(640), cfg.Width)
	assert.Equal(t, uint32(480), cfg.Height)
	assert.Equal(t, uint32(20), cfg.FPS)
	assert.Equal(t, 34601, cfg.MonitorPort)
	assert.Equal(t, 34602, cfg.CommandPort)
	assert.Equal(t, "/tmp/pi-server-token", cfg.TokenPath)
	assert.Equal(t, 2, cfg.FrameSkip)
	assert.Equal(t, 5, cfg.KernelSize)
	assert.Equal(t, 40, cfg.MotionThreshold)
	assert.True(t, cfg.MotionGated)
	assert.Equal(t, "smtp.zoho.com", cfg.SMTPHost)
	assert.Equal(t, 465, cfg.SMTPPort)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PISERVER_DEVICE", "/dev/video2")
	t.Setenv("PISERVER_MONITOR_PORT", "44601")
	t.Setenv("PISERVER_MOTION_GATED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/dev/video2", cfg.Device)
	assert.Equal(t, 44601, cfg.MonitorPort)
	assert.False(t, cfg.MotionGated)
}

func TestValidationRejectsEvenKernel(t *testing.T) {
	t.Setenv("PISERVER_KERNEL_SIZE", "4")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidationRejectsKernelOutOfRange(t *testing.T) {
	t.Setenv("PISERVER_KERNEL_SIZE", "17")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidationRejectsThresholdOutOfRange(t *testing.T) {
	t.Setenv("PISERVER_MOTION_THRESHOLD", "101")
	_, err := Load()
	assert.Error(t, err)
}
