package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/obentoo/ebumper/internal/common/config"
)

// ErrSourceNotApplicable is returned when a source is queried for a package
// that does not bind it.
var ErrSourceNotApplicable = errors.New("source not configured for package")

// Default endpoints of the package registries.
const (
	DefaultArchLinuxURL = "https://archlinux.org/packages/search/json/"
	DefaultPyPIURL      = "https://pypi.org/pypi/"
	DefaultNPMURL       = "https://registry.npmjs.org/"
)

// Query is one request for the latest upstream version of a package.
type Query struct {
	// Package is the category/package atom
	Package string
	Config  *PackageConfig
	// AllowPrerelease lets sources that flag prereleases return them
	AllowPrerelease bool
}

// Source reports the latest upstream version of a package.
type Source interface {
	// Name is the origin recorded on observations and used as the weight key
	Name() string
	// Applies reports whether cfg binds this source
	Applies(cfg *PackageConfig) bool
	// Latest returns the raw upstream version string
	Latest(ctx context.Context, q Query) (string, error)
}

// WeightedSource is a registry entry.
type WeightedSource struct {
	Source
	Weight  float64
	Enabled bool
}

// SourceRegistry maps source names to their reliability weight.
type SourceRegistry struct {
	entries []WeightedSource
}

// NewSourceRegistry pairs each source with its setting by name. Sources
// without a setting are disabled.
func NewSourceRegistry(settings []config.SourceSetting, sources ...Source) *SourceRegistry {
	byName := lo.KeyBy(settings, func(s config.SourceSetting) string { return s.Name })

	r := &SourceRegistry{}
	for _, src := range sources {
		s, ok := byName[src.Name()]
		r.entries = append(r.entries, WeightedSource{
			Source:  src,
			Weight:  s.Weight,
			Enabled: ok && s.Enabled,
		})
	}
	return r
}

// For returns the enabled sources bound by cfg, in registry order.
func (r *SourceRegistry) For(cfg *PackageConfig) []WeightedSource {
	return lo.Filter(r.entries, func(ws WeightedSource, _ int) bool {
		return ws.Enabled && ws.Applies(cfg)
	})
}

// Entries returns every registered source.
func (r *SourceRegistry) Entries() []WeightedSource {
	return append([]WeightedSource(nil), r.entries...)
}

// Weight returns the weight registered for name, or false if unknown.
func (r *SourceRegistry) Weight(name string) (float64, bool) {
	ws, ok := lo.Find(r.entries, func(ws WeightedSource) bool { return ws.Name() == name })
	return ws.Weight, ok
}

// UpstreamSource scrapes the package's own url with its configured parser,
// trying fallback_url when the primary fetch or parse fails.
type UpstreamSource struct {
	client *RetryableHTTPClient
}

// NewUpstreamSource creates the url-and-parser source.
func NewUpstreamSource(client *RetryableHTTPClient) *UpstreamSource {
	return &UpstreamSource{client: client}
}

func (s *UpstreamSource) Name() string { return config.SourceUpstream }

func (s *UpstreamSource) Applies(cfg *PackageConfig) bool { return cfg.HasUpstream() }

func (s *UpstreamSource) Latest(ctx context.Context, q Query) (string, error) {
	cfg := q.Config
	if !s.Applies(cfg) {
		return "", ErrSourceNotApplicable
	}

	fallback, hasFallback := cfg.FallbackParserSpec()
	var fallbackPtr *ParserSpec
	if hasFallback && cfg.FallbackURL == "" {
		// Same document, second parser
		fallbackPtr = &fallback
	}

	content, err := s.client.Fetch(ctx, cfg.URL, cfg.Headers)
	if err == nil {
		var version string
		if version, err = ExtractVersion(content, cfg.PrimaryParser(), fallbackPtr); err == nil {
			return version, nil
		}
	}
	primaryErr := err

	if cfg.FallbackURL != "" && hasFallback {
		content, err := s.client.Fetch(ctx, cfg.FallbackURL, cfg.Headers)
		if err == nil {
			if version, err := ExtractVersion(content, fallback, nil); err == nil {
				return version, nil
			}
		}
	}

	return "", primaryErr
}

// registrySource queries a JSON registry endpoint and reads one field.
type registrySource struct {
	name     string
	client   *RetryableHTTPClient
	bound    func(cfg *PackageConfig) string
	endpoint func(name string) string
	path     string
}

func (s *registrySource) Name() string { return s.name }

func (s *registrySource) Applies(cfg *PackageConfig) bool { return s.bound(cfg) != "" }

func (s *registrySource) Latest(ctx context.Context, q Query) (string, error) {
	name := s.bound(q.Config)
	if name == "" {
		return "", ErrSourceNotApplicable
	}

	content, err := s.client.Fetch(ctx, s.endpoint(name), nil)
	if err != nil {
		return "", err
	}
	parser := &JSONParser{Path: s.path}
	version, err := parser.Parse(content)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", s.name, name, err)
	}
	return version, nil
}

// NewArchLinuxSource reads pkgver of the first exact-name match from the
// archlinux.org package search API.
func NewArchLinuxSource(client *RetryableHTTPClient, baseURL string) Source {
	return &registrySource{
		name:   config.SourceArchLinux,
		client: client,
		bound:  func(cfg *PackageConfig) string { return cfg.Arch },
		endpoint: func(name string) string {
			return baseURL + "?name=" + url.QueryEscape(name)
		},
		path: "results[0].pkgver",
	}
}

// NewPyPISource reads info.version from the PyPI JSON API.
func NewPyPISource(client *RetryableHTTPClient, baseURL string) Source {
	return &registrySource{
		name:   config.SourcePyPI,
		client: client,
		bound:  func(cfg *PackageConfig) string { return cfg.PyPI },
		endpoint: func(name string) string {
			return withSlash(baseURL) + url.PathEscape(name) + "/json"
		},
		path: "info.version",
	}
}

// NewNPMSource reads version from the npm registry's latest dist-tag.
func NewNPMSource(client *RetryableHTTPClient, baseURL string) Source {
	return &registrySource{
		name:   config.SourceNPM,
		client: client,
		bound:  func(cfg *PackageConfig) string { return cfg.NPM },
		endpoint: func(name string) string {
			// Scoped names keep their @ but escape the slash
			return withSlash(baseURL) + strings.ReplaceAll(name, "/", "%2F") + "/latest"
		},
		path: "version",
	}
}

// DefaultSources returns every built-in source against the public endpoints.
func DefaultSources(client *RetryableHTTPClient) []Source {
	return []Source{
		NewGitHubSource(client.HTTPClient(), client.GitHubToken()),
		NewArchLinuxSource(client, DefaultArchLinuxURL),
		NewUpstreamSource(client),
		NewPyPISource(client, DefaultPyPIURL),
		NewNPMSource(client, DefaultNPMURL),
	}
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
