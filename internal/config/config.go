package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/photobooth/internal/logic/imaging"
)

// MaxConfigFileBytes caps the size of a YAML config file.
const MaxConfigFileBytes = 64 * 1024

// EnvPrefix prefixes every environment override, e.g.
// PHOTOBOOTH_CAPTURE_FILTER=sepia.
const EnvPrefix = "PHOTOBOOTH_"

// CameraConfig describes the frame source.
// Type selects a concrete device (only "synthetic" ships with the booth;
// embedders can plug their own camera.Device).
type CameraConfig struct {
	Type     string `yaml:"type" env:"TYPE"`
	WidthPx  int    `yaml:"width_px" env:"WIDTH_PX"`   // requested frame width
	HeightPx int    `yaml:"height_px" env:"HEIGHT_PX"` // requested frame height
	Mirror   bool   `yaml:"mirror" env:"MIRROR"`       // front-camera flip
}

// CaptureConfig holds the capture defaults a session starts with.
type CaptureConfig struct {
	Filter       string `yaml:"filter" env:"FILTER"`
	TimerEnabled bool   `yaml:"timer_enabled" env:"TIMER_ENABLED"`
	TimerSeconds int    `yaml:"timer_seconds" env:"TIMER_SECONDS"`  // countdown length
	ShotDelayMs  int    `yaml:"shot_delay_ms" env:"SHOT_DELAY_MS"` // pause between strip frames
}

// ExportConfig controls JPEG output and download names.
type ExportConfig struct {
	Quality        int    `yaml:"quality" env:"QUALITY"` // 1-100
	FilenamePrefix string `yaml:"filename_prefix" env:"FILENAME_PREFIX"`
}

// FlashConfig describes the GPIO flash LED.
type FlashConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	Pin        int  `yaml:"pin" env:"PIN"`
	DurationMs int  `yaml:"duration_ms" env:"DURATION_MS"`
}

// ControlsConfig describes the physical button panel (BCM pins).
// Buttons are active LOW with internal pull-ups.
type ControlsConfig struct {
	Enabled        bool `yaml:"enabled" env:"ENABLED"`
	SinglePin      int  `yaml:"single_pin" env:"SINGLE_PIN"`
	StripPin       int  `yaml:"strip_pin" env:"STRIP_PIN"`
	ReadyLEDPin    int  `yaml:"ready_led_pin" env:"READY_LED_PIN"` // -1 = no LED
	PollIntervalMs int  `yaml:"poll_interval_ms" env:"POLL_INTERVAL_MS"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level" env:"DEBUG_LEVEL"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio" env:"MOCK_GPIO"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	StreamLogs bool `yaml:"stream_logs" env:"STREAM_LOGS"` // mirror debug output to event subscribers
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera" envPrefix:"CAMERA_"`
	Capture  CaptureConfig  `yaml:"capture" envPrefix:"CAPTURE_"`
	Export   ExportConfig   `yaml:"export" envPrefix:"EXPORT_"`
	Flash    FlashConfig    `yaml:"flash" envPrefix:"FLASH_"`
	Controls ControlsConfig `yaml:"controls" envPrefix:"CONTROLS_"`
	Defaults DefaultsConfig `yaml:"defaults" envPrefix:"DEFAULTS_"`
}

// Default returns the configuration used for every key a file or the
// environment leaves unset.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Type:     "synthetic",
			WidthPx:  640,
			HeightPx: 480,
			Mirror:   true,
		},
		Capture: CaptureConfig{
			Filter:       string(imaging.KindNone),
			TimerEnabled: true,
			TimerSeconds: 3,
			ShotDelayMs:  1000,
		},
		Export: ExportConfig{
			Quality:        90,
			FilenamePrefix: "photo",
		},
		Flash: FlashConfig{
			Pin:        18,
			DurationMs: 200,
		},
		Controls: ControlsConfig{
			SinglePin:      17,
			StripPin:       27,
			ReadyLEDPin:    22,
			PollIntervalMs: 20,
		},
		Defaults: DefaultsConfig{
			MockGPIO: true,
		},
	}
}

// ValidateConfigPath accepts only "<...>/configs/<name>.yaml" paths
// without any ".." element.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when
// none) into the process environment. Missing files are skipped;
// variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a YAML file over the defaults, applies PHOTOBOOTH_*
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied, for
// running without a config file.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate checks ranges and fills zero values that have a sane default.
func (c *Config) Validate() error {
	if c.Camera.Type == "" {
		c.Camera.Type = "synthetic"
	}
	if c.Camera.Type != "synthetic" {
		return fmt.Errorf("camera.type %q is not supported", c.Camera.Type)
	}
	if c.Camera.WidthPx <= 0 || c.Camera.HeightPx <= 0 {
		return fmt.Errorf("camera size must be > 0, got %dx%d", c.Camera.WidthPx, c.Camera.HeightPx)
	}

	if _, err := imaging.ParseKind(c.Capture.Filter); err != nil {
		return fmt.Errorf("capture.filter: %w", err)
	}
	if c.Capture.TimerSeconds <= 0 {
		c.Capture.TimerSeconds = 3
	}
	if c.Capture.TimerSeconds > 10 {
		return fmt.Errorf("capture.timer_seconds must be <= 10, got %d", c.Capture.TimerSeconds)
	}
	if c.Capture.ShotDelayMs <= 0 {
		c.Capture.ShotDelayMs = 1000
	}

	if c.Export.Quality == 0 {
		c.Export.Quality = 90
	}
	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return fmt.Errorf("export.quality must be between 1 and 100, got %d", c.Export.Quality)
	}
	if c.Export.FilenamePrefix == "" {
		c.Export.FilenamePrefix = "photo"
	}
	if strings.ContainsAny(c.Export.FilenamePrefix, `/\`) {
		return fmt.Errorf("export.filename_prefix %q must not contain path separators", c.Export.FilenamePrefix)
	}

	if c.Flash.DurationMs <= 0 {
		c.Flash.DurationMs = 200
	}
	if c.Controls.PollIntervalMs <= 0 {
		c.Controls.PollIntervalMs = 20
	}
	if c.Controls.Enabled && c.Controls.SinglePin == c.Controls.StripPin {
		return fmt.Errorf("controls.single_pin and controls.strip_pin must differ, both are %d", c.Controls.SinglePin)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Filter returns the configured default filter.
func (c *Config) Filter() imaging.Kind {
	k, _ := imaging.ParseKind(c.Capture.Filter)
	return k
}

// ShotDelay returns the pause between strip frames.
func (c *Config) ShotDelay() time.Duration {
	return time.Duration(c.Capture.ShotDelayMs) * time.Millisecond
}

// FlashDuration returns how long the flash stays lit.
func (c *Config) FlashDuration() time.Duration {
	return time.Duration(c.Flash.DurationMs) * time.Millisecond
}

// PollInterval returns the button sampling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Controls.PollIntervalMs) * time.Millisecond
}
