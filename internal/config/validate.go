package config

import (
	"errors"
	"fmt"
	"strings"

	"chevelle/internal/capacity"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDisc(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDisc() error {
	if strings.TrimSpace(c.Disc.Device) == "" {
		return errors.New("disc.device must be set")
	}
	mode, ok := capacity.ParseMode(c.Disc.Mode)
	if !ok {
		return fmt.Errorf("disc.mode must be \"dao\" or \"tao\", got %q", c.Disc.Mode)
	}
	frames, err := capacity.ForMinutes(c.Disc.CapacityMinutes)
	if err != nil {
		return fmt.Errorf("disc.capacity_minutes: %w", err)
	}
	if err := capacity.ValidateCapacity(mode, frames); err != nil {
		return fmt.Errorf("disc.capacity_minutes: %w", err)
	}
	if c.Disc.Speed <= 0 {
		return fmt.Errorf("disc.speed must be positive, got %d", c.Disc.Speed)
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.MaxConcurrent <= 0 {
		return errors.New("encoding.max_concurrent must be positive")
	}
	if c.Encoding.MaxConcurrent > 64 {
		return fmt.Errorf("encoding.max_concurrent of %d is unreasonable; use 64 or fewer", c.Encoding.MaxConcurrent)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
