package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateThresholds(); err != nil {
		return err
	}
	if err := c.validateTrial(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if c.Encoder.OutputSuffix == "" && c.Encoder.OutputExt == "" {
		return errors.New("encoder.output_suffix and encoder.output_ext cannot both be empty")
	}
	return nil
}

func (c *Config) validateThresholds() error {
	if c.Thresholds.MinBitrateKbps < 0 {
		return errors.New("thresholds.min_bitrate_kbps must not be negative")
	}
	if c.Thresholds.MinSavingsPercent < 0 || c.Thresholds.MinSavingsPercent > 100 {
		return fmt.Errorf("thresholds.min_savings_percent must be between 0 and 100, got %v", c.Thresholds.MinSavingsPercent)
	}
	return nil
}

func (c *Config) validateTrial() error {
	if c.Trial.DurationSeconds <= 0 {
		return errors.New("trial.duration_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if c.Downloads.PollIntervalSeconds*2 > c.Downloads.TimeoutSeconds {
		return errors.New("downloads.poll_interval_seconds is too large for downloads.timeout_seconds")
	}
	return nil
}
