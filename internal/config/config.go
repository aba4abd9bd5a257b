// Package config holds the timing constants and target of a navpilot run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/navpilot/internal/keys"
)

// DefaultTargetURL is the address the automation keeps navigating to.
const DefaultTargetURL = "twitter.com"

// Config captures every tunable of a run.
type Config struct {
	TargetURL  string           `yaml:"target_url"`
	Cadence    time.Duration    `yaml:"cadence"`        // Time between navigation cycles
	Slice      time.Duration    `yaml:"slice_interval"` // Interruptible wait granularity
	Motion     MotionConfig     `yaml:"motion"`
	Keys       KeysConfig       `yaml:"keys"`
	Verify     VerifyConfig     `yaml:"verify"`
	Hook       HookConfig       `yaml:"hook"`
	Terminal   TerminalConfig   `yaml:"terminal"`
	AddressBar AddressBarConfig `yaml:"address_bar"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-"`
}

// MotionConfig shapes synthesized cursor paths.
type MotionConfig struct {
	Steps        int           `yaml:"steps"`
	MinStepDelay time.Duration `yaml:"min_step_delay"`
	MaxStepDelay time.Duration `yaml:"max_step_delay"`
	MaxArcHeight float64       `yaml:"max_arc_height"`
	Jitter       float64       `yaml:"jitter"`
}

// KeysConfig shapes synthesized keystroke cadence.
type KeysConfig struct {
	MinHold        time.Duration `yaml:"min_hold"`
	MaxHold        time.Duration `yaml:"max_hold"`
	MinInterKey    time.Duration `yaml:"min_inter_key"`
	MaxInterKey    time.Duration `yaml:"max_inter_key"`
	MinModifierGap time.Duration `yaml:"min_modifier_gap"`
	MaxModifierGap time.Duration `yaml:"max_modifier_gap"`
}

// VerifyConfig controls the clipboard round-trip check.
type VerifyConfig struct {
	ClipboardAttempts int           `yaml:"clipboard_attempts"`
	ClipboardInterval time.Duration `yaml:"clipboard_interval"`
	CopySettle        time.Duration `yaml:"copy_settle"`
}

// HookConfig controls the system-wide Escape subscription.
type HookConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	InstallTimeout time.Duration `yaml:"install_timeout"`
}

// TerminalConfig controls the pause console.
type TerminalConfig struct {
	Path          string        `yaml:"path"`
	Args          []string      `yaml:"args"`
	AttachTimeout time.Duration `yaml:"attach_timeout"`
	AttachPoll    time.Duration `yaml:"attach_poll"`
}

// AddressBarConfig locates the address bar relative to the browser window.
type AddressBarConfig struct {
	OffsetX     int           `yaml:"offset_x"`
	OffsetY     int           `yaml:"offset_y"`
	ClickSettle time.Duration `yaml:"click_settle"`
}

// LoggingConfig defines log verbosity and an optional log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the fixed constants used when no overrides are supplied.
func Default() Config {
	return Config{
		TargetURL: DefaultTargetURL,
		Cadence:   1200 * time.Millisecond,
		Slice:     10 * time.Millisecond,
		Motion: MotionConfig{
			Steps:        150,
			MinStepDelay: 10 * time.Millisecond,
			MaxStepDelay: 28 * time.Millisecond,
			MaxArcHeight: 70,
			Jitter:       1.5,
		},
		Keys: KeysConfig{
			MinHold:        35 * time.Millisecond,
			MaxHold:        90 * time.Millisecond,
			MinInterKey:    45 * time.Millisecond,
			MaxInterKey:    140 * time.Millisecond,
			MinModifierGap: 15 * time.Millisecond,
			MaxModifierGap: 45 * time.Millisecond,
		},
		Verify: VerifyConfig{
			ClipboardAttempts: 5,
			ClipboardInterval: 40 * time.Millisecond,
			CopySettle:        60 * time.Millisecond,
		},
		Hook: HookConfig{
			Debounce:       75 * time.Millisecond,
			InstallTimeout: 2 * time.Second,
		},
		Terminal: TerminalConfig{
			Path:          "cmd.exe",
			Args:          []string{"/k", "title navpilot paused && echo Paused. Press Escape again to exit."},
			AttachTimeout: 5 * time.Second,
			AttachPoll:    50 * time.Millisecond,
		},
		AddressBar: AddressBarConfig{
			OffsetX:     260,
			OffsetY:     52,
			ClickSettle: 120 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Source: "defaults",
	}
}

// Load overlays the YAML file at path on the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	expanded, err := ExpandHome(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", expanded, err)
	}
	cfg.Source = expanded

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the automation cannot run with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.TargetURL) == "" {
		errs = append(errs, errors.New("target_url must not be empty"))
	} else if !keys.Mappable(c.TargetURL) {
		errs = append(errs, fmt.Errorf("target_url %q contains characters that cannot be typed", c.TargetURL))
	}
	if c.Cadence <= 0 {
		errs = append(errs, errors.New("cadence must be positive"))
	}
	if c.Slice <= 0 || c.Slice > 10*time.Millisecond {
		errs = append(errs, errors.New("slice_interval must be in (0, 10ms]"))
	}
	if c.Motion.Steps <= 0 {
		errs = append(errs, errors.New("motion.steps must be positive"))
	}
	if c.Motion.MaxArcHeight < 0 || c.Motion.Jitter < 0 {
		errs = append(errs, errors.New("motion.max_arc_height and motion.jitter must not be negative"))
	}
	errs = append(errs,
		checkRange("motion step delay", c.Motion.MinStepDelay, c.Motion.MaxStepDelay),
		checkRange("key hold", c.Keys.MinHold, c.Keys.MaxHold),
		checkRange("inter-key delay", c.Keys.MinInterKey, c.Keys.MaxInterKey),
		checkRange("modifier gap", c.Keys.MinModifierGap, c.Keys.MaxModifierGap),
	)
	if c.Verify.ClipboardAttempts <= 0 {
		errs = append(errs, errors.New("verify.clipboard_attempts must be positive"))
	}
	if c.Verify.ClipboardInterval <= 0 {
		errs = append(errs, errors.New("verify.clipboard_interval must be positive"))
	}
	if c.Hook.Debounce < 0 {
		errs = append(errs, errors.New("hook.debounce must not be negative"))
	}
	if c.Hook.InstallTimeout <= 0 {
		errs = append(errs, errors.New("hook.install_timeout must be positive"))
	}
	if c.Terminal.AttachTimeout <= 0 || c.Terminal.AttachPoll <= 0 {
		errs = append(errs, errors.New("terminal attach timeout and poll must be positive"))
	}

	return errors.Join(errs...)
}

func checkRange(name string, lo, hi time.Duration) error {
	if lo < 0 {
		return fmt.Errorf("%s minimum must not be negative", name)
	}
	if hi < lo {
		return fmt.Errorf("%s range is inverted (%s > %s)", name, lo, hi)
	}
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
