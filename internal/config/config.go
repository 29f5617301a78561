package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RootDir   string `toml:"root_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
}

// Scan controls which files the sweep considers.
type Scan struct {
	Extensions    []string `toml:"extensions"`
	MinFileSizeMB int64    `toml:"min_file_size_mb"`
}

// Thresholds contains the admission gate floors.
type Thresholds struct {
	MinBitrateKbps    int64   `toml:"min_bitrate_kbps"`
	MinSavingsPercent float64 `toml:"min_savings_percent"`
}

// Trial configures the short segment encode used to measure real savings.
type Trial struct {
	DurationSeconds int `toml:"duration_seconds"`
}

// Downloads configures cloud file materialization and prefetch.
type Downloads struct {
	TimeoutSeconds      int `toml:"timeout_seconds"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	PrefetchWindow      int `toml:"prefetch_window"`
}

// Encoder contains external tool configuration.
type Encoder struct {
	FFmpeg       string `toml:"ffmpeg"`
	FFprobe      string `toml:"ffprobe"`
	OutputSuffix string `toml:"output_suffix"`
	OutputExt    string `toml:"output_ext"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for squeeze.
//
// Configuration sections by subsystem:
//   - Paths: swept root, log directory, history database location
//   - Scan: candidate file extensions and minimum size
//   - Thresholds: bitrate floor and minimum savings percent
//   - Trial: segment encode duration
//   - Downloads: materialization timeout, poll interval, prefetch window
//   - Encoder: external tool binaries and output naming
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Scan       Scan       `toml:"scan"`
	Thresholds Thresholds `toml:"thresholds"`
	Trial      Trial      `toml:"trial"`
	Downloads  Downloads  `toml:"downloads"`
	Encoder    Encoder    `toml:"encoder"`
	Logging    Logging    `toml:"logging"`
}

// Default returns the configuration used when no file overrides a value.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    "~/.local/share/squeeze/logs",
			HistoryDB: "~/.local/share/squeeze/history.db",
		},
		Scan: Scan{
			Extensions:    []string{"mkv", "mp4", "avi", "mov", "wmv", "m4v", "mpg", "mpeg", "ts"},
			MinFileSizeMB: 250,
		},
		Thresholds: Thresholds{
			MinBitrateKbps:    1500,
			MinSavingsPercent: 10,
		},
		Trial: Trial{DurationSeconds: 60},
		Downloads: Downloads{
			TimeoutSeconds:      900,
			PollIntervalSeconds: 2,
			PrefetchWindow:      2,
		},
		Encoder: Encoder{
			FFmpeg:       "ffmpeg",
			FFprobe:      "ffprobe",
			OutputSuffix: "-hevc",
			OutputExt:    ".mkv",
		},
		Logging: Logging{Format: "auto", Level: "info"},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/squeeze/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("squeeze.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run needs to exist up front.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, filepath.Dir(c.Paths.HistoryDB)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MinFileSizeBytes returns the candidate size floor in bytes.
func (c *Config) MinFileSizeBytes() int64 {
	return c.Scan.MinFileSizeMB * 1024 * 1024
}

// ExtensionSet returns the candidate extensions as a lookup set keyed by
// lowercase extension including the leading dot.
func (c *Config) ExtensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Scan.Extensions))
	for _, ext := range c.Scan.Extensions {
		cleaned := strings.ToLower(strings.TrimSpace(ext))
		if cleaned == "" {
			continue
		}
		if !strings.HasPrefix(cleaned, ".") {
			cleaned = "." + cleaned
		}
		set[cleaned] = struct{}{}
	}
	return set
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
