package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDisc()
	c.normalizeEncoding()
	c.normalizeBurning()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDisc() {
	c.Disc.Device = strings.TrimSpace(c.Disc.Device)
	if c.Disc.Device == "" {
		if value, ok := os.LookupEnv("CHEVELLE_DEVICE"); ok {
			c.Disc.Device = strings.TrimSpace(value)
		}
	}
	if c.Disc.Device == "" {
		c.Disc.Device = defaultDevice
	}
	if c.Disc.Speed <= 0 {
		c.Disc.Speed = defaultSpeed
	}
	if c.Disc.CapacityMinutes == 0 {
		c.Disc.CapacityMinutes = defaultCapacityMinutes
	}
	c.Disc.Mode = strings.ToLower(strings.TrimSpace(c.Disc.Mode))
	if c.Disc.Mode == "" {
		c.Disc.Mode = defaultMode
	}
}

func (c *Config) normalizeEncoding() {
	if c.Encoding.MaxConcurrent <= 0 {
		c.Encoding.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Encoding.TrackTimeout <= 0 {
		c.Encoding.TrackTimeout = defaultTrackTimeout
	}
	if c.Encoding.ProbeTimeout <= 0 {
		c.Encoding.ProbeTimeout = defaultProbeTimeout
	}
}

func (c *Config) normalizeBurning() {
	if c.Burning.MaxRetries < 0 {
		c.Burning.MaxRetries = 0
	}
	if c.Burning.DeviceLockTimeout <= 0 {
		c.Burning.DeviceLockTimeout = defaultDeviceLockTimeout
	}
	if c.Burning.BurnTimeout <= 0 {
		c.Burning.BurnTimeout = defaultBurnTimeout
	}
	if c.Burning.WaitForMediaTimeout <= 0 {
		c.Burning.WaitForMediaTimeout = defaultWaitForMediaTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
