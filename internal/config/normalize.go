package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScan()
	c.normalizeEncoder()
	c.normalizeDownloads()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RootDir) != "" {
		if c.Paths.RootDir, err = expandPath(c.Paths.RootDir); err != nil {
			return fmt.Errorf("paths.root_dir: %w", err)
		}
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeScan() {
	if len(c.Scan.Extensions) == 0 {
		c.Scan.Extensions = Default().Scan.Extensions
	}
	if c.Scan.MinFileSizeMB <= 0 {
		c.Scan.MinFileSizeMB = Default().Scan.MinFileSizeMB
	}
}

func (c *Config) normalizeEncoder() {
	if strings.TrimSpace(c.Encoder.FFmpeg) == "" {
		c.Encoder.FFmpeg = "ffmpeg"
	}
	if strings.TrimSpace(c.Encoder.FFprobe) == "" {
		c.Encoder.FFprobe = "ffprobe"
	}
	if strings.TrimSpace(c.Encoder.OutputExt) == "" {
		c.Encoder.OutputExt = ".mkv"
	}
	if !strings.HasPrefix(c.Encoder.OutputExt, ".") {
		c.Encoder.OutputExt = "." + c.Encoder.OutputExt
	}
}

func (c *Config) normalizeDownloads() {
	defaults := Default().Downloads
	if c.Downloads.TimeoutSeconds <= 0 {
		c.Downloads.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if c.Downloads.PollIntervalSeconds <= 0 {
		c.Downloads.PollIntervalSeconds = defaults.PollIntervalSeconds
	}
	if c.Downloads.PrefetchWindow < 0 {
		c.Downloads.PrefetchWindow = 0
	}
}

func (c *Config) normalizeLogging() {
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = "auto"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}
