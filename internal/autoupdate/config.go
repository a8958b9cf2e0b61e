package autoupdate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
)

// Error variables for configuration errors
var (
	// ErrPackagesConfigNotFound is returned when packages.toml is not found in the overlay
	ErrPackagesConfigNotFound = errors.New("packages.toml not found in overlay")
	// ErrInvalidParserType is returned when an invalid parser type is specified
	ErrInvalidParserType = errors.New("invalid parser type: must be 'json', 'regex' or 'html'")
	// ErrMissingParser is returned when a package has a url but no parser
	ErrMissingParser = errors.New("missing required field: parser")
	// ErrMissingPath is returned when a JSON parser is missing the required path field
	ErrMissingPath = errors.New("missing required field: path (required for json parser)")
	// ErrMissingPattern is returned when a regex parser is missing the required pattern field
	ErrMissingPattern = errors.New("missing required field: pattern (required for regex parser)")
	// ErrNoSources is returned when a package binds no upstream source at all
	ErrNoSources = errors.New("no upstream source configured: set url, github, arch, pypi or npm")
	// ErrInvalidGitHubRepo is returned when github is not in owner/repo form
	ErrInvalidGitHubRepo = errors.New("github must be in owner/repo form")
	// ErrInvalidPattern is returned when a package selection glob is malformed
	ErrInvalidPattern = errors.New("invalid package pattern")
)

// PackageConfig is one [category/package] section of packages.toml.
type PackageConfig struct {
	// URL is queried by the upstream source and parsed with Parser
	URL string `toml:"url,omitempty"`
	// Parser is "json", "regex" or "html"
	Parser string `toml:"parser,omitempty"`
	// Path is the JSON path to the version (json parser)
	Path string `toml:"path,omitempty"`
	// Pattern is a regex with one capture group (regex parser, optional post-filter for html)
	Pattern string `toml:"pattern,omitempty"`
	// Selector is a CSS selector (html parser)
	Selector string `toml:"selector,omitempty"`
	// XPath is an XPath expression (html parser)
	XPath string `toml:"xpath,omitempty"`
	// Headers are sent with the upstream request; values expand ${ENV}
	Headers map[string]string `toml:"headers,omitempty"`

	FallbackURL     string `toml:"fallback_url,omitempty"`
	FallbackParser  string `toml:"fallback_parser,omitempty"`
	FallbackPattern string `toml:"fallback_pattern,omitempty"`

	// Binary marks -bin packages; informational only
	Binary bool `toml:"binary,omitempty"`

	// GitHub is the owner/repo whose releases are queried
	GitHub string `toml:"github,omitempty"`
	// Arch is the Arch Linux package name
	Arch string `toml:"arch,omitempty"`
	// PyPI is the Python package name
	PyPI string `toml:"pypi,omitempty"`
	// NPM is the npm package name
	NPM string `toml:"npm,omitempty"`

	// AllowPrerelease overrides the global policy for this package
	AllowPrerelease *bool `toml:"allow_prerelease,omitempty"`
}

// PackagesConfig represents the entire packages.toml configuration file.
// The keys in the map are package names in "category/package" format.
type PackagesConfig struct {
	Packages map[string]PackageConfig `toml:"packages"`
}

// PackagesConfigPath returns overlay/.autoupdate/packages.toml
func PackagesConfigPath(overlayPath string) string {
	return filepath.Join(overlayPath, ".autoupdate", "packages.toml")
}

// LoadPackagesConfig loads and parses packages.toml from the overlay.
func LoadPackagesConfig(overlayPath string) (*PackagesConfig, error) {
	configPath := PackagesConfigPath(overlayPath)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPackagesConfigNotFound
		}
		return nil, fmt.Errorf("failed to read packages.toml: %w", err)
	}

	// Each [category/package] section is a top-level key
	var sections map[string]PackageConfig
	if err := toml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse packages.toml: %w", err)
	}

	config := &PackagesConfig{Packages: make(map[string]PackageConfig, len(sections))}
	for pkg, cfg := range sections {
		config.Packages[pkg] = cfg
	}
	return config, nil
}

// HasUpstream reports whether the package configures a URL to scrape.
func (p *PackageConfig) HasUpstream() bool {
	return p.URL != ""
}

// GitHubRepo splits the github binding into owner and repo.
func (p *PackageConfig) GitHubRepo() (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(p.GitHub, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

// PrereleaseAllowed resolves the per-package override against the global flag.
func (p *PackageConfig) PrereleaseAllowed(global bool) bool {
	if p.AllowPrerelease != nil {
		return *p.AllowPrerelease
	}
	return global
}

// PrimaryParser is the parser spec applied to URL.
func (p *PackageConfig) PrimaryParser() ParserSpec {
	return ParserSpec{
		Kind:     p.Parser,
		Path:     p.Path,
		Pattern:  p.Pattern,
		Selector: p.Selector,
		XPath:    p.XPath,
	}
}

// FallbackParserSpec is the parser spec applied when the primary parser
// fails. A json fallback reuses Path; html reuses Selector and XPath.
func (p *PackageConfig) FallbackParserSpec() (ParserSpec, bool) {
	if p.FallbackParser == "" {
		return ParserSpec{}, false
	}
	return ParserSpec{
		Kind:     p.FallbackParser,
		Path:     p.Path,
		Pattern:  p.FallbackPattern,
		Selector: p.Selector,
		XPath:    p.XPath,
	}, true
}

// ValidatePackageConfig validates a single package configuration.
func ValidatePackageConfig(pkg string, cfg *PackageConfig) error {
	if !cfg.HasUpstream() && cfg.GitHub == "" && cfg.Arch == "" && cfg.PyPI == "" && cfg.NPM == "" {
		return fmt.Errorf("package %s: %w", pkg, ErrNoSources)
	}

	if cfg.GitHub != "" {
		if _, _, ok := cfg.GitHubRepo(); !ok {
			return fmt.Errorf("package %s: %w: got %q", pkg, ErrInvalidGitHubRepo, cfg.GitHub)
		}
	}

	if cfg.HasUpstream() {
		if cfg.Parser == "" {
			return fmt.Errorf("package %s: %w", pkg, ErrMissingParser)
		}
		if err := cfg.PrimaryParser().Validate(); err != nil {
			return fmt.Errorf("package %s: %w", pkg, err)
		}
	}

	if fallback, ok := cfg.FallbackParserSpec(); ok {
		if err := fallback.Validate(); err != nil {
			return fmt.Errorf("package %s: fallback: %w", pkg, err)
		}
	}

	return nil
}

// ValidateAll validates all package configurations in sorted order and
// returns the first error.
func (c *PackagesConfig) ValidateAll() error {
	for _, pkg := range c.Names() {
		cfg := c.Packages[pkg]
		if err := ValidatePackageConfig(pkg, &cfg); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the configured package atoms sorted.
func (c *PackagesConfig) Names() []string {
	names := make([]string, 0, len(c.Packages))
	for pkg := range c.Packages {
		names = append(names, pkg)
	}
	sort.Strings(names)
	return names
}

// Select returns the sorted packages matching any of the glob patterns
// ("app-editors/*", "dev-python/**", "*/neovim"). No patterns selects all.
func (c *PackagesConfig) Select(patterns ...string) ([]string, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	names := c.Names()
	if len(patterns) == 0 {
		return names, nil
	}

	var selected []string
	for _, pkg := range names {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, pkg); ok {
				selected = append(selected, pkg)
				break
			}
		}
	}
	return selected, nil
}
