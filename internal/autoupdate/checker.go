package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/obentoo/ebumper/internal/common/config"
	"github.com/obentoo/ebumper/internal/common/ebuild"
	"github.com/obentoo/ebumper/internal/common/logger"
	"github.com/obentoo/ebumper/internal/gate"
	"github.com/obentoo/ebumper/internal/history"
)

// Error variables for checker errors
var (
	// ErrPackageNotFound is returned when a package is not found in the configuration
	ErrPackageNotFound = errors.New("package not found in configuration")
	// ErrInvalidPackageName is returned for atoms not in category/package form
	ErrInvalidPackageName = errors.New("invalid package name format")
	// ErrNoApplicableSource is returned when every source bound by a package is disabled
	ErrNoApplicableSource = errors.New("no enabled source applies to package")
	// ErrFetchFailed is returned when every applicable source failed
	ErrFetchFailed = errors.New("failed to fetch upstream version")
)

// Recorder stores check-cycle verdicts. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (int64, error)
}

// CheckResult is the outcome of checking a single package.
type CheckResult struct {
	// Package is the full package name (category/package)
	Package string
	// CurrentVersion is the highest non-live ebuild version in the overlay
	CurrentVersion string
	// Observations are every source answer gathered, before filtering
	Observations []gate.Observation
	Verdict      gate.Verdict
	// SourceErrors holds the failures of individual sources by name
	SourceErrors map[string]error
	// FromCache is true when every observation came from the cache
	FromCache bool
	// Error is set when the package could not be evaluated at all
	Error error
}

// Decision returns the verdict's decision.
func (r *CheckResult) Decision() gate.Decision {
	return r.Verdict.Decision
}

// Checker runs check cycles: current version from the overlay, observations
// from the sources, the gate, then the queue and the history.
type Checker struct {
	overlayPath string
	config      *PackagesConfig
	cache       *Cache
	cacheTTL    time.Duration
	pending     *PendingList
	registry    *SourceRegistry
	settings    []config.SourceSetting
	httpClient  *RetryableHTTPClient
	policy      gate.Policy
	workers     int
	recorder    Recorder
	configDir   string
	nowFunc     func() time.Time
}

// CheckerOption is a functional option for configuring Checker
type CheckerOption func(*Checker) error

// WithCache sets a custom cache for the checker
func WithCache(cache *Cache) CheckerOption {
	return func(c *Checker) error {
		c.cache = cache
		return nil
	}
}

// WithCacheTTL sets the TTL of the cache created by NewChecker
func WithCacheTTL(ttl time.Duration) CheckerOption {
	return func(c *Checker) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: %s", config.ErrInvalidCacheTTL, ttl)
		}
		c.cacheTTL = ttl
		return nil
	}
}

// WithPendingList sets a custom pending list for the checker
func WithPendingList(pending *PendingList) CheckerOption {
	return func(c *Checker) error {
		c.pending = pending
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client for the checker
func WithHTTPClient(client *RetryableHTTPClient) CheckerOption {
	return func(c *Checker) error {
		c.httpClient = client
		return nil
	}
}

// WithConfigDir sets the configuration directory for cache and pending files
func WithConfigDir(dir string) CheckerOption {
	return func(c *Checker) error {
		c.configDir = dir
		return nil
	}
}

// WithPackagesConfig sets a custom packages configuration
func WithPackagesConfig(config *PackagesConfig) CheckerOption {
	return func(c *Checker) error {
		c.config = config
		return nil
	}
}

// WithSourceRegistry replaces the built-in sources
func WithSourceRegistry(registry *SourceRegistry) CheckerOption {
	return func(c *Checker) error {
		c.registry = registry
		return nil
	}
}

// WithSourceSettings sets weights and enablement of the built-in sources
func WithSourceSettings(settings []config.SourceSetting) CheckerOption {
	return func(c *Checker) error {
		c.settings = settings
		return nil
	}
}

// WithPolicy sets the gate policy
func WithPolicy(p gate.Policy) CheckerOption {
	return func(c *Checker) error {
		c.policy = p
		return nil
	}
}

// WithWorkers sets how many packages are checked concurrently
func WithWorkers(n int) CheckerOption {
	return func(c *Checker) error {
		if n <= 0 {
			return fmt.Errorf("%w: %d", config.ErrInvalidWorkers, n)
		}
		c.workers = n
		return nil
	}
}

// WithRecorder records every verdict, typically into a history.Store
func WithRecorder(r Recorder) CheckerOption {
	return func(c *Checker) error {
		c.recorder = r
		return nil
	}
}

// WithCheckerNowFunc sets a custom time function for testing
func WithCheckerNowFunc(fn func() time.Time) CheckerOption {
	return func(c *Checker) error {
		c.nowFunc = fn
		return nil
	}
}

// OptionsFromConfig translates the user's autoupdate block into options.
func OptionsFromConfig(a config.AutoupdateConfig) ([]CheckerOption, error) {
	ttl, err := a.GetCacheTTL()
	if err != nil {
		return nil, err
	}
	return []CheckerOption{
		WithPolicy(gate.Policy{
			AllowPrerelease:     a.AllowPrerelease,
			ConfidenceThreshold: a.GetConfidenceThreshold(),
			AgreementThreshold:  a.GetAgreementThreshold(),
		}),
		WithWorkers(a.GetWorkers()),
		WithCacheTTL(ttl),
		WithSourceSettings(a.SourceSettings()),
	}, nil
}

// NewChecker creates a checker for the overlay. Unless overridden by
// options it loads packages.toml and keeps cache and queue under the
// autoupdate config directory.
func NewChecker(overlayPath string, opts ...CheckerOption) (*Checker, error) {
	checker := &Checker{
		overlayPath: overlayPath,
		cacheTTL:    DefaultCacheTTL,
		policy:      gate.DefaultPolicy(),
		workers:     config.DefaultWorkers,
		nowFunc:     time.Now,
	}

	for _, opt := range opts {
		if err := opt(checker); err != nil {
			return nil, fmt.Errorf("failed to apply checker option: %w", err)
		}
	}

	if checker.configDir == "" {
		dir, err := config.AutoupdateDir()
		if err != nil {
			return nil, err
		}
		checker.configDir = dir
	}

	if checker.config == nil {
		cfg, err := LoadPackagesConfig(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load packages config: %w", err)
		}
		checker.config = cfg
	}

	if checker.cache == nil {
		cache, err := NewCache(checker.configDir, WithTTL(checker.cacheTTL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		checker.cache = cache
	}

	if checker.pending == nil {
		pending, err := NewPendingList(checker.configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pending list: %w", err)
		}
		checker.pending = pending
	}

	if checker.httpClient == nil {
		checker.httpClient = NewRetryableHTTPClient()
	}

	if checker.registry == nil {
		settings := checker.settings
		if settings == nil {
			settings = config.AutoupdateConfig{}.SourceSettings()
		}
		checker.registry = NewSourceRegistry(settings, DefaultSources(checker.httpClient)...)
	}

	return checker, nil
}

// CheckPackage runs one check cycle for pkg. force bypasses the cache.
// The returned result is never nil; its Error mirrors the returned error.
func (c *Checker) CheckPackage(ctx context.Context, pkg string, force bool) (*CheckResult, error) {
	result := &CheckResult{Package: pkg, SourceErrors: map[string]error{}}
	log := logger.WithField("package", pkg)

	fail := func(err error) (*CheckResult, error) {
		result.Error = zerr.With(err, "package", pkg)
		log.Error("check failed: %v", err)
		return result, result.Error
	}

	pkgConfig, exists := c.config.Packages[pkg]
	if !exists {
		return fail(ErrPackageNotFound)
	}

	category, name, ok := ebuild.SplitAtom(pkg)
	if !ok {
		return fail(ErrInvalidPackageName)
	}

	eb, err := ebuild.Latest(c.overlayPath, category, name)
	if err != nil {
		return fail(zerr.Wrap(err, "failed to get current version"))
	}
	result.CurrentVersion = eb.Version

	sources := c.registry.For(&pkgConfig)
	if len(sources) == 0 {
		return fail(ErrNoApplicableSource)
	}

	policy := c.policy
	policy.AllowPrerelease = pkgConfig.PrereleaseAllowed(c.policy.AllowPrerelease)

	result.Observations, result.FromCache = c.observe(ctx, pkg, &pkgConfig, sources, policy.AllowPrerelease, force, result.SourceErrors)
	if len(result.Observations) == 0 {
		errs := make([]error, 0, len(result.SourceErrors))
		for _, err := range result.SourceErrors {
			errs = append(errs, err)
		}
		return fail(fmt.Errorf("%w: %w", ErrFetchFailed, errors.Join(errs...)))
	}

	result.Verdict = gate.Evaluate(eb.ParsedVersion(), result.Observations, policy)
	decision := result.Verdict.Decision
	log.Debug("current %s, %s", eb.Version, decision)

	if err := c.enqueue(pkg, eb.Version, result.Verdict); err != nil {
		result.Error = zerr.With(zerr.Wrap(err, "failed to update pending list"), "package", pkg)
		log.Warn("%v", result.Error)
	}
	c.record(ctx, pkg, eb.Version, result.Verdict)

	return result, nil
}

// observe gathers one observation per applicable source. Failed sources are
// reported in errs and skipped.
func (c *Checker) observe(ctx context.Context, pkg string, cfg *PackageConfig, sources []WeightedSource, allowPrerelease, force bool, errs map[string]error) ([]gate.Observation, bool) {
	log := logger.WithField("package", pkg)
	obs := make([]gate.Observation, 0, len(sources))
	allCached := true

	for _, src := range sources {
		name := src.Name()
		slot := CacheSource(name, allowPrerelease)

		entry, cached := c.cache.GetWithForce(pkg, slot, force)
		if !cached {
			allCached = false
			raw, err := src.Latest(ctx, Query{Package: pkg, Config: cfg, AllowPrerelease: allowPrerelease})
			if err != nil {
				errs[name] = err
				log.WithField("source", name).Warn("query failed: %v", err)
				continue
			}
			if entry, err = c.cache.Set(pkg, slot, raw); err != nil {
				log.WithField("source", name).Warn("failed to update cache: %v", err)
			}
		}

		obs = append(obs, gate.NewObservation(name, entry.Version, src.Weight, entry.Timestamp))
	}

	return obs, allCached && len(obs) > 0
}

// enqueue mirrors the decision into the queue. An up-to-date NoOp clears the
// package; a NoOp without consensus leaves it untouched.
func (c *Checker) enqueue(pkg, current string, v gate.Verdict) error {
	d := v.Decision
	status, ok := StatusForDecision(d.Kind)
	if !ok {
		if d.Target != nil {
			return c.pending.Delete(pkg)
		}
		return nil
	}

	update := PendingUpdate{
		Package:        pkg,
		CurrentVersion: current,
		NewVersion:     d.Target.String(),
		Status:         status,
		Confidence:     d.Confidence,
		Reason:         d.Reason,
		Notes:          v.Consensus.Notes,
	}
	if len(v.Consensus.Groups) > 0 {
		update.Sources = v.Consensus.Groups[0].Sources
	}
	return c.pending.Add(update)
}

func (c *Checker) record(ctx context.Context, pkg, current string, v gate.Verdict) {
	if c.recorder == nil {
		return
	}

	entry := history.Entry{
		Package:    pkg,
		Current:    current,
		Decision:   v.Decision.Kind.String(),
		Reason:     v.Decision.Reason,
		Confidence: v.Decision.Confidence,
		Agree:      v.Consensus.SourcesAgree,
		Notes:      v.Consensus.Notes,
		CheckedAt:  c.nowFunc(),
	}
	if v.Decision.Target != nil {
		entry.Candidate = v.Decision.Target.String()
	}
	if len(v.Consensus.Groups) > 0 {
		entry.Sources = v.Consensus.Groups[0].Sources
	}

	if _, err := c.recorder.Record(ctx, entry); err != nil {
		logger.WithField("package", pkg).Warn("failed to record history: %v", err)
	}
}

// CheckAll checks every configured package.
func (c *Checker) CheckAll(ctx context.Context, force bool) ([]CheckResult, error) {
	return c.Check(ctx, nil, force)
}

// Check checks the packages matching patterns (all when empty), at most
// workers at a time. Results are in package order. A failing package does
// not stop the others; its error is on its result.
func (c *Checker) Check(ctx context.Context, patterns []string, force bool) ([]CheckResult, error) {
	names, err := c.config.Select(patterns...)
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, pkg := range names {
		g.Go(func() error {
			result, _ := c.CheckPackage(gctx, pkg, force)
			results[i] = *result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// Config returns the packages configuration.
func (c *Checker) Config() *PackagesConfig {
	return c.config
}

// Cache returns the cache instance.
func (c *Checker) Cache() *Cache {
	return c.cache
}

// Pending returns the pending list instance.
func (c *Checker) Pending() *PendingList {
	return c.pending
}

// Registry returns the source registry.
func (c *Checker) Registry() *SourceRegistry {
	return c.registry
}

// Policy returns the gate policy.
func (c *Checker) Policy() gate.Policy {
	return c.policy
}

// OverlayPath returns the overlay path.
func (c *Checker) OverlayPath() string {
	return c.overlayPath
}
