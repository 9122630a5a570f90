// Package config loads the server's runtime configuration from the
// environment, with defaults matching the deployed appliance.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration. Fields mutable at runtime
// through client commands (kernel size, motion threshold) are seeded from
// here and owned by the pipeline afterwards. The display mode is not
// configured here; the pipeline always starts in MotionDetect.
type Config struct {
	Device string `envconfig:"DEVICE" default:"/dev/video0"`
	Width  uint32 `envconfig:"WIDTH" default:"640"`
	Height uint32 `envconfig:"HEIGHT" default:"480"`
	FPS    uint32 `envconfig:"FPS" default:"20"`

	MonitorPort int    `envconfig:"MONITOR_PORT" default:"34601"`
	CommandPort int    `envconfig:"COMMAND_PORT" default:"34602"`
	TokenPath   string `envconfig:"TOKEN_PATH" default:"/tmp/pi-server-token"`

	FrameSkip       int  `envconfig:"FRAME_SKIP" default:"2"`
	KernelSize      int  `envconfig:"KERNEL_SIZE" default:"5"`
	MotionThreshold int  `envconfig:"MOTION_THRESHOLD" default:"40"`
	MotionGated     bool `envconfig:"MOTION_GATED" default:"true"`

	SMTPHost  string `envconfig:"SMTP_HOST" default:"smtp.zoho.com"`
	SMTPPort  int    `envconfig:"SMTP_PORT" default:"465"`
	EmailFrom string `envconfig:"EMAIL_FROM" default:"Rob Boyer <rboyer61@zohomail.com>"`
	EmailTo   string `envconfig:"EMAIL_TO" default:"Rob Boyer <rboyer503@comcast.net>"`
	NetrcPath string `envconfig:"NETRC_PATH" default:""`
}

// Load reads PISERVER_-prefixed environment variables over the defaults
// and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("piserver", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.KernelSize < 1 || c.KernelSize > 15 || c.KernelSize%2 == 0 {
		return fmt.Errorf("kernel size %d: must be odd, within [1,15]", c.KernelSize)
	}
	if c.MotionThreshold < 1 || c.MotionThreshold > 100 {
		return fmt.Errorf("motion threshold %d: must be within [1,100]", c.MotionThreshold)
	}
	if c.FrameSkip < 1 {
		return fmt.Errorf("frame skip %d: must be at least 1", c.FrameSkip)
	}
	return nil
}
