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

	"chevelle/internal/capacity"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Disc contains burner device and disc geometry settings.
type Disc struct {
	Device          string  `toml:"device"`
	Speed           int     `toml:"speed"`
	CapacityMinutes float64 `toml:"capacity_minutes"`
	Mode            string  `toml:"mode"`
	EjectAfterBurn  bool    `toml:"eject_after_burn"`
}

// Encoding contains transcode pool settings.
type Encoding struct {
	MaxConcurrent int `toml:"max_concurrent"`
	TrackTimeout  int `toml:"track_timeout"`
	ProbeTimeout  int `toml:"probe_timeout"`
}

// Burning contains burn session policy.
type Burning struct {
	MaxRetries           int  `toml:"max_retries"`
	DeviceLockTimeout    int  `toml:"device_lock_timeout"`
	BurnTimeout          int  `toml:"burn_timeout"`
	Verify               bool `toml:"verify"`
	AbortOnFailure       bool `toml:"abort_on_failure"`
	WaitForMediaTimeout  int  `toml:"wait_for_media_timeout"`
	RequireBlankPresence bool `toml:"require_blank_disc"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Discs          bool   `toml:"discs"`
	Session        bool   `toml:"session"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for chevelle.
//
// Sections by subsystem:
//   - Paths: staging and log directories
//   - Disc: burner device, speed, capacity, write mode
//   - Encoding: transcode pool size and timeouts
//   - Burning: retry policy, verification, device lock timeouts
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Disc          Disc          `toml:"disc"`
	Encoding      Encoding      `toml:"encoding"`
	Burning       Burning       `toml:"burning"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chevelle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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
		if _, err := os.Stat(expanded); err != nil {
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
	projectPath, err := filepath.Abs("chevelle.toml")
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

// EnsureDirectories creates the directories a run needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CapacityFrames translates the configured disc capacity into frames.
func (c *Config) CapacityFrames() (int64, error) {
	return capacity.ForMinutes(c.Disc.CapacityMinutes)
}

// DiscMode returns the configured write mode.
func (c *Config) DiscMode() capacity.Mode {
	mode, ok := capacity.ParseMode(c.Disc.Mode)
	if !ok {
		return capacity.ModeDAO
	}
	return mode
}

// FFmpegBinary returns the transcoder executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the prober executable name.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// WodimBinary returns the burner executable name.
func (c *Config) WodimBinary() string {
	return "wodim"
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
