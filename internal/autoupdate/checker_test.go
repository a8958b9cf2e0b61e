package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obentoo/ebumper/internal/common/config"
	"github.com/obentoo/ebumper/internal/common/ebuild"
	"github.com/obentoo/ebumper/internal/gate"
	"github.com/obentoo/ebumper/internal/history"
)

// fakeSource answers every package it applies to with a fixed version.
type fakeSource struct {
	name    string
	version string
	err     error
	// versions overrides version per package
	versions map[string]string
	// prerelease, when set, answers queries that allow prereleases
	prerelease string
	calls      int32

	mu        sync.Mutex
	lastQuery Query
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Applies(*PackageConfig) bool { return true }

func (s *fakeSource) Latest(_ context.Context, q Query) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	s.lastQuery = q
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if q.AllowPrerelease && s.prerelease != "" {
		return s.prerelease, nil
	}
	if v, ok := s.versions[q.Package]; ok {
		return v, nil
	}
	return s.version, nil
}

func (s *fakeSource) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

// fakeRecorder collects recorded history entries.
type fakeRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, e history.Entry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.entries = append(r.entries, e)
	return int64(len(r.entries)), nil
}

// registryOf enables every source with the given weights, in order.
func registryOf(weights map[string]float64, sources ...Source) *SourceRegistry {
	settings := make([]config.SourceSetting, 0, len(sources))
	for _, src := range sources {
		settings = append(settings, config.SourceSetting{Name: src.Name(), Enabled: true, Weight: weights[src.Name()]})
	}
	return NewSourceRegistry(settings, sources...)
}

// genTestPackageName returns distinct package names for index 0..4
func genTestPackageName(index int) string {
	categories := []string{"app-misc", "dev-libs", "net-misc", "sys-apps", "x11-libs"}
	names := []string{"test-pkg", "example", "sample", "demo", "widget"}
	return categories[index%len(categories)] + "/" + names[index%len(names)]
}

func createTestEbuild(t *testing.T, overlayDir, pkgName, version string) {
	t.Helper()

	category, name, ok := ebuild.SplitAtom(pkgName)
	if !ok {
		t.Fatalf("Invalid package name: %s", pkgName)
	}

	pkgDir := filepath.Join(overlayDir, category, name)
	require.NoError(t, os.MkdirAll(pkgDir, 0755))

	content := `# Test ebuild
EAPI=8
DESCRIPTION="Test package"
HOMEPAGE="https://example.com"
SRC_URI=""
LICENSE="MIT"
SLOT="0"
KEYWORDS="~amd64"
`
	ebuildPath := filepath.Join(pkgDir, name+"-"+version+".ebuild")
	require.NoError(t, os.WriteFile(ebuildPath, []byte(content), 0644))
}

// checkerFixture is an overlay with one ebuild per package and a checker
// backed by fake sources.
type checkerFixture struct {
	overlay   string
	configDir string
	checker   *Checker
	recorder  *fakeRecorder
}

func newCheckerFixture(t *testing.T, current map[string]string, registry *SourceRegistry, opts ...CheckerOption) *checkerFixture {
	t.Helper()
	tmp := t.TempDir()
	f := &checkerFixture{
		overlay:   filepath.Join(tmp, "overlay"),
		configDir: filepath.Join(tmp, "config"),
		recorder:  &fakeRecorder{},
	}

	packages := make(map[string]PackageConfig, len(current))
	for pkg, version := range current {
		packages[pkg] = PackageConfig{GitHub: "owner/" + strings.ReplaceAll(pkg, "/", "-")}
		createTestEbuild(t, f.overlay, pkg, version)
	}

	base := []CheckerOption{
		WithConfigDir(f.configDir),
		WithPackagesConfig(&PackagesConfig{Packages: packages}),
		WithSourceRegistry(registry),
		WithRecorder(f.recorder),
	}
	checker, err := NewChecker(f.overlay, append(base, opts...)...)
	require.NoError(t, err)
	f.checker = checker
	return f
}

// TestCheckAllCompleteness tests Property 8: Check Completeness
// **Feature: ebumper-sources, Property 8: Check Completeness**
func TestCheckAllCompleteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("CheckAll returns one result per package in package order", prop.ForAll(
		func(numPackages, workers int) bool {
			current := map[string]string{}
			for i := 0; i < numPackages; i++ {
				current[genTestPackageName(i)] = "0.9.0"
			}
			src := &fakeSource{name: "github", version: "1.0.0"}
			f := newCheckerFixture(t, current, registryOf(map[string]float64{"github": 1}, src), WithWorkers(workers))

			results, err := f.checker.CheckAll(context.Background(), false)
			if err != nil || len(results) != numPackages {
				t.Logf("results=%d err=%v", len(results), err)
				return false
			}
			for i, r := range results {
				if r.Error != nil || r.Decision().Kind != gate.Update {
					return false
				}
				if i > 0 && results[i-1].Package >= r.Package {
					return false
				}
			}
			return f.checker.Pending().Len() == numPackages && len(f.recorder.entries) == numPackages
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

// TestCheckPackageQueueMirrorsDecision tests Property 9: Queue Mirrors Decision
// **Feature: ebumper-sources, Property 9: Queue Mirrors Decision**
func TestCheckPackageQueueMirrorsDecision(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a unanimous source yields update, no-op or conflict", prop.ForAll(
		func(cur, up []int) bool {
			current := fmt.Sprintf("%d.%d.%d", cur[0], cur[1], cur[2])
			upstream := fmt.Sprintf("%d.%d.%d", up[0], up[1], up[2])
			pkg := "app-misc/widget"

			src := &fakeSource{name: "github", version: upstream}
			f := newCheckerFixture(t, map[string]string{pkg: current}, registryOf(map[string]float64{"github": 0.4}, src))

			result, err := f.checker.CheckPackage(context.Background(), pkg, false)
			if err != nil {
				return false
			}
			if result.Decision().Confidence != 1 {
				return false
			}

			entry, queued := f.checker.Pending().Get(pkg)
			switch ebuild.Compare(ebuild.ParseVersion(upstream), ebuild.ParseVersion(current)) {
			case ebuild.Greater:
				return result.Decision().Kind == gate.Update && queued &&
					entry.Status == StatusPending && entry.NewVersion == upstream && entry.CurrentVersion == current
			case ebuild.Less:
				return result.Decision().Kind == gate.Conflict && queued && entry.Status == StatusConflict
			default:
				return result.Decision().Kind == gate.NoOp && !queued
			}
		},
		gen.SliceOfN(3, gen.IntRange(0, 3)),
		gen.SliceOfN(3, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func TestNewCheckerDefaults(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "overlay")
	require.NoError(t, os.MkdirAll(filepath.Join(overlay, ".autoupdate"), 0755))
	require.NoError(t, os.WriteFile(PackagesConfigPath(overlay), []byte(`
["app-editors/neovim"]
github = "neovim/neovim"
`), 0644))

	checker, err := NewChecker(overlay, WithConfigDir(filepath.Join(tmp, "config")))
	require.NoError(t, err)

	assert.Equal(t, overlay, checker.OverlayPath())
	assert.Contains(t, checker.Config().Packages, "app-editors/neovim")
	assert.NotNil(t, checker.Cache())
	assert.NotNil(t, checker.Pending())
	assert.Equal(t, gate.DefaultPolicy(), checker.Policy())

	names := make([]string, 0)
	for _, ws := range checker.Registry().Entries() {
		names = append(names, ws.Name())
		assert.True(t, ws.Enabled, ws.Name())
	}
	assert.ElementsMatch(t, []string{"github", "arch_linux", "upstream", "pypi", "npm"}, names)

	w, ok := checker.Registry().Weight("github")
	assert.True(t, ok)
	assert.Equal(t, 0.4, w)
}

func TestNewCheckerMissingConfig(t *testing.T) {
	_, err := NewChecker(t.TempDir(), WithConfigDir(t.TempDir()))
	assert.ErrorIs(t, err, ErrPackagesConfigNotFound)
}

func TestNewCheckerInvalidOptions(t *testing.T) {
	cfg := WithPackagesConfig(&PackagesConfig{})
	_, err := NewChecker(t.TempDir(), cfg, WithConfigDir(t.TempDir()), WithWorkers(0))
	assert.ErrorIs(t, err, config.ErrInvalidWorkers)

	_, err = NewChecker(t.TempDir(), cfg, WithConfigDir(t.TempDir()), WithCacheTTL(-time.Second))
	assert.ErrorIs(t, err, config.ErrInvalidCacheTTL)
}

func TestOptionsFromConfig(t *testing.T) {
	disabled := false
	weight, threshold := 0.9, 0.8
	opts, err := OptionsFromConfig(config.AutoupdateConfig{
		AllowPrerelease:     true,
		ConfidenceThreshold: &threshold,
		CacheTTL:            "2h",
		Workers:             7,
		Sources: map[string]config.SourceConfig{
			"npm":    {Enabled: &disabled},
			"github": {Weight: &weight},
		},
	})
	require.NoError(t, err)

	checker, err := NewChecker(t.TempDir(), append(opts,
		WithConfigDir(t.TempDir()),
		WithPackagesConfig(&PackagesConfig{}),
	)...)
	require.NoError(t, err)

	assert.Equal(t, gate.Policy{AllowPrerelease: true, ConfidenceThreshold: 0.8, AgreementThreshold: 0.5}, checker.Policy())
	assert.Equal(t, 7, checker.workers)
	assert.Equal(t, 2*time.Hour, checker.Cache().TTL())

	w, _ := checker.Registry().Weight("github")
	assert.Equal(t, 0.9, w)
	for _, ws := range checker.Registry().Entries() {
		assert.Equal(t, ws.Name() != "npm", ws.Enabled, ws.Name())
	}

	_, err = OptionsFromConfig(config.AutoupdateConfig{CacheTTL: "soon"})
	assert.ErrorIs(t, err, config.ErrInvalidCacheTTL)
}

func TestCheckPackageErrors(t *testing.T) {
	ok := &fakeSource{name: "github", version: "2.0"}
	f := newCheckerFixture(t, map[string]string{"app-misc/present": "1.0"}, registryOf(map[string]float64{"github": 1}, ok))
	f.checker.config.Packages["noslash"] = PackageConfig{GitHub: "a/b"}
	f.checker.config.Packages["app-misc/missing"] = PackageConfig{GitHub: "a/b"}

	tests := []struct {
		pkg     string
		wantErr error
	}{
		{"app-misc/unknown", ErrPackageNotFound},
		{"noslash", ErrInvalidPackageName},
		{"app-misc/missing", ebuild.ErrNoEbuildFound},
	}
	for _, tt := range tests {
		result, err := f.checker.CheckPackage(context.Background(), tt.pkg, false)
		assert.ErrorIs(t, err, tt.wantErr, tt.pkg)
		require.NotNil(t, result)
		assert.Equal(t, err, result.Error)
		assert.Equal(t, tt.pkg, result.Package)
	}
	assert.Equal(t, 0, ok.Calls())
	assert.Empty(t, f.recorder.entries)
}

func TestCheckPackageNoApplicableSource(t *testing.T) {
	src := &fakeSource{name: "github", version: "2.0"}
	registry := NewSourceRegistry([]config.SourceSetting{{Name: "github", Enabled: false, Weight: 0.4}}, src)
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"}, registry)

	_, err := f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	assert.ErrorIs(t, err, ErrNoApplicableSource)
	assert.Equal(t, 0, src.Calls())
}

func TestCheckPackageAllSourcesFail(t *testing.T) {
	boom := errors.New("connection refused")
	a := &fakeSource{name: "github", err: boom}
	b := &fakeSource{name: "pypi", err: ErrMaxRetriesExceeded}
	f := newCheckerFixture(t, map[string]string{"dev-python/foo": "1.0"}, registryOf(map[string]float64{"github": 0.4, "pypi": 0.2}, a, b))

	result, err := f.checker.CheckPackage(context.Background(), "dev-python/foo", false)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Len(t, result.SourceErrors, 2)
	assert.Equal(t, "1.0", result.CurrentVersion)
	assert.False(t, f.checker.Pending().Has("dev-python/foo"))
}

func TestCheckPackagePartialFailure(t *testing.T) {
	a := &fakeSource{name: "github", version: "v1.1.0"}
	b := &fakeSource{name: "pypi", err: errors.New("404")}
	f := newCheckerFixture(t, map[string]string{"dev-python/foo": "1.0.0"}, registryOf(map[string]float64{"github": 0.4, "pypi": 0.2}, a, b))

	result, err := f.checker.CheckPackage(context.Background(), "dev-python/foo", false)
	require.NoError(t, err)
	assert.Contains(t, result.SourceErrors, "pypi")
	assert.Len(t, result.Observations, 1)
	assert.Equal(t, gate.Update, result.Decision().Kind)
	assert.Equal(t, "1.1.0", result.Decision().Target.String())

	entry, ok := f.checker.Pending().Get("dev-python/foo")
	require.True(t, ok)
	assert.Equal(t, "1.1.0", entry.NewVersion, "queued version is canonical")
	assert.Equal(t, []string{"github"}, entry.Sources)
}

func TestCheckPackageLowConfidenceHolds(t *testing.T) {
	gh := &fakeSource{name: "github", version: "2.0"}
	arch := &fakeSource{name: "arch_linux", version: "1.5"}
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"},
		registryOf(map[string]float64{"github": 0.4, "arch_linux": 0.3}, gh, arch))

	result, err := f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	require.NoError(t, err)

	d := result.Decision()
	assert.Equal(t, gate.Hold, d.Kind)
	assert.Equal(t, "2.0", d.Target.String())
	assert.InDelta(t, 0.4/0.7, d.Confidence, 1e-9)
	assert.True(t, result.Verdict.Consensus.SourcesAgree)
	assert.Len(t, result.Verdict.Consensus.Notes, 1)

	review := f.checker.Pending().ReviewQueue()
	require.Len(t, review, 1)
	assert.Equal(t, StatusHold, review[0].Status)
	assert.Equal(t, gate.ReasonLowConfidence, review[0].Reason)
	assert.Equal(t, result.Verdict.Consensus.Notes, review[0].Notes)
}

func TestCheckPackageUpToDateClearsQueue(t *testing.T) {
	src := &fakeSource{name: "github", version: "1.0"}
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"}, registryOf(map[string]float64{"github": 1}, src))
	require.NoError(t, f.checker.Pending().Add(PendingUpdate{Package: "app-misc/foo", NewVersion: "0.9", Status: StatusConflict}))

	result, err := f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	require.NoError(t, err)
	assert.Equal(t, gate.ReasonUpToDate, result.Decision().Reason)
	assert.False(t, f.checker.Pending().Has("app-misc/foo"))
}

func TestCheckPackageNoConsensusKeepsQueue(t *testing.T) {
	src := &fakeSource{name: "github", version: "latest"}
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"}, registryOf(map[string]float64{"github": 1}, src))
	require.NoError(t, f.checker.Pending().Add(PendingUpdate{Package: "app-misc/foo", NewVersion: "1.1", Status: StatusPending}))

	result, err := f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	require.NoError(t, err)
	assert.Equal(t, gate.NoOp, result.Decision().Kind)
	assert.Nil(t, result.Decision().Target)
	assert.Empty(t, result.Verdict.Filtered)

	entry, ok := f.checker.Pending().Get("app-misc/foo")
	require.True(t, ok)
	assert.Equal(t, "1.1", entry.NewVersion)
}

func TestCheckPackagePrereleaseOverride(t *testing.T) {
	src := &fakeSource{name: "github", version: "2.0_rc1"}
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"}, registryOf(map[string]float64{"github": 1}, src))

	result, err := f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	require.NoError(t, err)
	assert.Equal(t, gate.NoOp, result.Decision().Kind, "prerelease filtered by default")
	assert.False(t, src.lastQuery.AllowPrerelease)

	allow := true
	cfg := f.checker.config.Packages["app-misc/foo"]
	cfg.AllowPrerelease = &allow
	f.checker.config.Packages["app-misc/foo"] = cfg

	result, err = f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	require.NoError(t, err)
	assert.Equal(t, gate.Update, result.Decision().Kind)
	assert.Equal(t, "2.0_rc1", result.Decision().Target.String())
	assert.True(t, src.lastQuery.AllowPrerelease)
	assert.Equal(t, "app-misc/foo", src.lastQuery.Package)
}

func TestCheckPackageUsesCache(t *testing.T) {
	src := &fakeSource{name: "github", version: "1.1"}
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"}, registryOf(map[string]float64{"github": 1}, src))
	ctx := context.Background()

	first, err := f.checker.CheckPackage(ctx, "app-misc/foo", false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	src.version = "1.2"
	second, err := f.checker.CheckPackage(ctx, "app-misc/foo", false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, "1.1", second.Decision().Target.String())
	assert.Equal(t, 1, src.Calls())

	forced, err := f.checker.CheckPackage(ctx, "app-misc/foo", true)
	require.NoError(t, err)
	assert.False(t, forced.FromCache)
	assert.Equal(t, "1.2", forced.Decision().Target.String())
	assert.Equal(t, 2, src.Calls())

	entry, ok := f.checker.Cache().Get("app-misc/foo", "github")
	require.True(t, ok)
	assert.Equal(t, "1.2", entry.Version)
}

func TestCheckPackageCacheSeparatesPrereleaseMode(t *testing.T) {
	src := &fakeSource{name: "github", version: "1.0.0", prerelease: "1.1.0_rc1"}
	registry := registryOf(map[string]float64{"github": 1}, src)
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "0.9"}, registry)
	ctx := context.Background()

	// run checks the package with a checker freshly loaded from the shared
	// config dir, like a new invocation of the command.
	run := func(allowPrerelease bool) *CheckResult {
		t.Helper()
		policy := gate.DefaultPolicy()
		policy.AllowPrerelease = allowPrerelease
		checker, err := NewChecker(f.overlay,
			WithConfigDir(f.configDir),
			WithPackagesConfig(f.checker.Config()),
			WithSourceRegistry(registry),
			WithPolicy(policy))
		require.NoError(t, err)
		result, err := checker.CheckPackage(ctx, "app-misc/foo", false)
		require.NoError(t, err)
		return result
	}

	result := run(true)
	assert.Equal(t, gate.Update, result.Decision().Kind)
	assert.Equal(t, "1.1.0_rc1", result.Decision().Target.String())

	result = run(false)
	assert.False(t, result.FromCache, "rc answer must not serve a stable-only check")
	assert.Equal(t, gate.Update, result.Decision().Kind)
	assert.Equal(t, "1.0.0", result.Decision().Target.String())
	assert.Equal(t, 2, src.Calls())

	result = run(false)
	assert.True(t, result.FromCache)
	assert.Equal(t, "1.0.0", result.Decision().Target.String())

	result = run(true)
	assert.True(t, result.FromCache)
	assert.Equal(t, "1.1.0_rc1", result.Decision().Target.String())
	assert.Equal(t, 2, src.Calls())
}

func TestCheckPackageRecordsHistory(t *testing.T) {
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	checkedAt := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)
	src := &fakeSource{name: "github", version: "1.1"}
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"}, registryOf(map[string]float64{"github": 1}, src),
		WithRecorder(store), WithCheckerNowFunc(func() time.Time { return checkedAt }))

	_, err = f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	require.NoError(t, err)

	entries, err := store.List(context.Background(), "app-misc/foo", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "1.0", e.Current)
	assert.Equal(t, "1.1", e.Candidate)
	assert.Equal(t, "update", e.Decision)
	assert.Equal(t, gate.ReasonNewerAvailable, e.Reason)
	assert.True(t, e.Agree)
	assert.Equal(t, []string{"github"}, e.Sources)
	assert.True(t, e.CheckedAt.Equal(checkedAt))
}

func TestCheckPackageRecorderFailureIsNotFatal(t *testing.T) {
	src := &fakeSource{name: "github", version: "1.1"}
	f := newCheckerFixture(t, map[string]string{"app-misc/foo": "1.0"}, registryOf(map[string]float64{"github": 1}, src),
		WithRecorder(&fakeRecorder{err: history.ErrClosed}))

	result, err := f.checker.CheckPackage(context.Background(), "app-misc/foo", false)
	require.NoError(t, err)
	assert.Equal(t, gate.Update, result.Decision().Kind)
}

func TestCheckSelectsPatterns(t *testing.T) {
	current := map[string]string{
		"app-editors/neovim":  "0.9.0",
		"app-editors/helix":   "23.10",
		"dev-python/requests": "2.31.0",
	}
	src := &fakeSource{name: "github", version: "99"}
	f := newCheckerFixture(t, current, registryOf(map[string]float64{"github": 1}, src))

	results, err := f.checker.Check(context.Background(), []string{"app-editors/*"}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "app-editors/helix", results[0].Package)
	assert.Equal(t, "app-editors/neovim", results[1].Package)

	_, err = f.checker.Check(context.Background(), []string{"app-[editors"}, false)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestCheckAllKeepsGoingAfterFailure(t *testing.T) {
	src := &fakeSource{name: "github", version: "2.0"}
	f := newCheckerFixture(t, map[string]string{"app-misc/a": "1.0", "app-misc/c": "1.0"}, registryOf(map[string]float64{"github": 1}, src))
	f.checker.config.Packages["app-misc/b"] = PackageConfig{GitHub: "o/b"}

	results, err := f.checker.CheckAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Error)
	assert.ErrorIs(t, results[1].Error, ebuild.ErrNoEbuildFound)
	assert.NoError(t, results[2].Error)
}

// blockingSource tracks how many queries run at once.
type blockingSource struct {
	active, peak int32
}

func (s *blockingSource) Name() string                { return "github" }
func (s *blockingSource) Applies(*PackageConfig) bool { return true }

func (s *blockingSource) Latest(ctx context.Context, _ Query) (string, error) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "1.0", nil
}

func TestCheckAllRespectsWorkerLimit(t *testing.T) {
	current := map[string]string{}
	for i := 0; i < 5; i++ {
		current[genTestPackageName(i)] = "1.0"
	}
	src := &blockingSource{}
	f := newCheckerFixture(t, current, registryOf(map[string]float64{"github": 1}, src), WithWorkers(2))

	results, err := f.checker.CheckAll(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.LessOrEqual(t, atomic.LoadInt32(&src.peak), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&src.peak), int32(1))
}

func TestCheckAllCancelled(t *testing.T) {
	src := &fakeSource{name: "github", version: "2.0"}
	f := newCheckerFixture(t, map[string]string{"app-misc/a": "1.0"}, registryOf(map[string]float64{"github": 1}, src))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.checker.CheckAll(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
}
