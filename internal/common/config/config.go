package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrOverlayPathNotSet       = errors.New("overlay path is not configured")
	ErrOverlayPathNotFound     = errors.New("overlay path does not exist")
	ErrOverlayInvalidStructure = errors.New("overlay structure is invalid")
	ErrInvalidThreshold        = errors.New("threshold must be between 0 and 1")
	ErrInvalidWeight           = errors.New("source weight must be between 0 and 1")
	ErrInvalidCacheTTL         = errors.New("invalid cache_ttl duration")
	ErrInvalidWorkers          = errors.New("workers must be positive")
	ErrUnknownSource           = errors.New("unknown source")
)

// Autoupdate defaults
const (
	DefaultConfidenceThreshold = 0.7
	DefaultAgreementThreshold  = 0.5
	DefaultCacheTTL            = 24 * time.Hour
	DefaultWorkers             = 3
)

// Source names understood by the checker
const (
	SourceGitHub    = "github"
	SourceArchLinux = "arch_linux"
	SourceUpstream  = "upstream"
	SourcePyPI      = "pypi"
	SourceNPM       = "npm"
)

// DefaultSourceWeights are the reliability weights used when a source is not
// configured explicitly.
var DefaultSourceWeights = map[string]float64{
	SourceGitHub:    0.4,
	SourceArchLinux: 0.3,
	SourceUpstream:  0.3,
	SourcePyPI:      0.2,
	SourceNPM:       0.2,
}

// Config represents the application configuration
type Config struct {
	Overlay    OverlayConfig    `yaml:"overlay"`
	GitHub     GitHubConfig     `yaml:"github"`
	Autoupdate AutoupdateConfig `yaml:"autoupdate,omitempty"`
}

// OverlayConfig holds overlay-specific settings
type OverlayConfig struct {
	Path string `yaml:"path"`
}

// GitHubConfig holds GitHub API settings
type GitHubConfig struct {
	Token string `yaml:"token"` // Personal access token for higher rate limits
}

// AutoupdateConfig holds the check-cycle policy. Unset fields fall back to
// the defaults through the Get* accessors; the thresholds are pointers so an
// explicit 0 is kept.
type AutoupdateConfig struct {
	AllowPrerelease     bool                    `yaml:"allow_prerelease,omitempty"`
	ConfidenceThreshold *float64                `yaml:"confidence_threshold,omitempty"`
	AgreementThreshold  *float64                `yaml:"agreement_threshold,omitempty"`
	CacheTTL            string                  `yaml:"cache_ttl,omitempty"` // Go duration, e.g. "24h"
	Workers             int                     `yaml:"workers,omitempty"`
	History             *bool                   `yaml:"history,omitempty"`
	Sources             map[string]SourceConfig `yaml:"sources,omitempty"`
}

// SourceConfig overrides one source's registry entry
type SourceConfig struct {
	Enabled *bool    `yaml:"enabled,omitempty"`
	Weight  *float64 `yaml:"weight,omitempty"`
}

// SourceSetting is a resolved registry entry
type SourceSetting struct {
	Name    string
	Enabled bool
	Weight  float64
}

// GetConfidenceThreshold returns the configured threshold or the default
func (a AutoupdateConfig) GetConfidenceThreshold() float64 {
	if a.ConfidenceThreshold == nil {
		return DefaultConfidenceThreshold
	}
	return *a.ConfidenceThreshold
}

// GetAgreementThreshold returns the configured threshold or the default
func (a AutoupdateConfig) GetAgreementThreshold() float64 {
	if a.AgreementThreshold == nil {
		return DefaultAgreementThreshold
	}
	return *a.AgreementThreshold
}

// GetCacheTTL parses cache_ttl, returning DefaultCacheTTL when unset
func (a AutoupdateConfig) GetCacheTTL() (time.Duration, error) {
	if a.CacheTTL == "" {
		return DefaultCacheTTL, nil
	}
	d, err := time.ParseDuration(a.CacheTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCacheTTL, a.CacheTTL)
	}
	return d, nil
}

// GetWorkers returns the number of packages checked concurrently
func (a AutoupdateConfig) GetWorkers() int {
	if a.Workers <= 0 {
		return DefaultWorkers
	}
	return a.Workers
}

// HistoryEnabled reports whether decisions are recorded; on unless disabled
func (a AutoupdateConfig) HistoryEnabled() bool {
	return a.History == nil || *a.History
}

// SourceSettings merges the configured overrides onto the default registry.
// The result is sorted by name.
func (a AutoupdateConfig) SourceSettings() []SourceSetting {
	settings := make([]SourceSetting, 0, len(DefaultSourceWeights))
	for name, weight := range DefaultSourceWeights {
		s := SourceSetting{Name: name, Enabled: true, Weight: weight}
		if override, ok := a.Sources[name]; ok {
			if override.Enabled != nil {
				s.Enabled = *override.Enabled
			}
			if override.Weight != nil {
				s.Weight = *override.Weight
			}
		}
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Name < settings[j].Name })
	return settings
}

// Validate checks ranges and durations in the autoupdate block
func (a AutoupdateConfig) Validate() error {
	if a.ConfidenceThreshold != nil && !inUnitRange(*a.ConfidenceThreshold) {
		return fmt.Errorf("confidence_threshold: %w", ErrInvalidThreshold)
	}
	if a.AgreementThreshold != nil && !inUnitRange(*a.AgreementThreshold) {
		return fmt.Errorf("agreement_threshold: %w", ErrInvalidThreshold)
	}
	if a.Workers < 0 {
		return ErrInvalidWorkers
	}
	if _, err := a.GetCacheTTL(); err != nil {
		return err
	}
	for name, src := range a.Sources {
		if _, ok := DefaultSourceWeights[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		if src.Weight != nil && !inUnitRange(*src.Weight) {
			return fmt.Errorf("sources.%s: %w", name, ErrInvalidWeight)
		}
	}
	return nil
}

func inUnitRange(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= 1
}

// configHome returns $XDG_CONFIG_HOME or ~/.config
func configHome() (string, error) {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return xdgConfig, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config"), nil
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/ebumper/config.yaml (XDG standard - priority)
// 2. ~/.ebumper/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	xdgConfig, err := configHome()
	if err != nil {
		return nil, err
	}

	return []string{
		filepath.Join(xdgConfig, "ebumper", "config.yaml"),
		filepath.Join(home, ".ebumper", "config.yaml"),
	}, nil
}

// AutoupdateDir is where cache, pending list and history live
func AutoupdateDir() (string, error) {
	xdgConfig, err := configHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgConfig, "ebumper", "autoupdate"), nil
}

// DefaultConfigPath returns the default config file path (XDG standard)
func DefaultConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// Load reads configuration from the first available config file
// Priority: ~/.config/ebumper/config.yaml > ~/.ebumper/config.yaml
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path. A missing file is
// created with defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Autoupdate.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &cfg, nil
}

// Save writes configuration to the default config file
func (c *Config) Save() error {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetOverlayPath returns the validated overlay path
func (c *Config) GetOverlayPath() (string, error) {
	if c.Overlay.Path == "" {
		return "", ErrOverlayPathNotSet
	}

	// Expand home directory if needed
	path := c.Overlay.Path
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrOverlayPathNotFound
		}
		return "", err
	}
	if !info.IsDir() {
		return "", ErrOverlayPathNotFound
	}

	result := ValidateOverlayStructure(path)
	if !result.Valid {
		return "", &OverlayValidationError{
			Path:   path,
			Errors: result.Errors,
		}
	}

	return path, nil
}

// OverlayValidationResult contains overlay validation results
type OverlayValidationResult struct {
	Valid    bool     // True if overlay structure is valid
	Errors   []string // Critical issues that prevent operation
	Warnings []string // Non-critical issues
}

// OverlayValidationError represents an overlay validation failure
type OverlayValidationError struct {
	Path   string
	Errors []string
}

func (e *OverlayValidationError) Error() string {
	msg := "overlay validation failed for " + e.Path + ":"
	for _, err := range e.Errors {
		msg += "\n  - " + err
	}
	msg += "\n\nSuggestion: check overlay.path in ~/.config/ebumper/config.yaml"
	return msg
}

func (e *OverlayValidationError) Unwrap() error {
	return ErrOverlayInvalidStructure
}

// ValidateOverlayStructure checks if a path is a valid Gentoo overlay.
// A valid overlay must have profiles/ and metadata/ directories; a missing
// .autoupdate/packages.toml is only a warning.
func ValidateOverlayStructure(path string) *OverlayValidationResult {
	result := &OverlayValidationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	for _, dir := range []string{"profiles", "metadata"} {
		if _, err := os.Stat(filepath.Join(path, dir)); os.IsNotExist(err) {
			result.Valid = false
			result.Errors = append(result.Errors, "missing "+dir+"/ directory")
		}
	}

	if _, err := os.Stat(filepath.Join(path, ".autoupdate", "packages.toml")); os.IsNotExist(err) {
		result.Warnings = append(result.Warnings, "missing .autoupdate/packages.toml")
	}

	return result
}
