// Package overlay reads the package layout of a Gentoo overlay.
package overlay

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/obentoo/ebumper/internal/common/ebuild"
)

// PackageInfo describes one package directory of an overlay.
type PackageInfo struct {
	Category string   // e.g., "app-editors"
	Package  string   // e.g., "neovim"
	Versions []string // all ebuild versions, ascending
	Latest   string   // highest non-live well-formed version, empty when none
}

// ScanResult contains the results of scanning an overlay
type ScanResult struct {
	OverlayPath string
	Packages    []PackageInfo
	Errors      []ScanError
}

// ScanError represents an unreadable directory met during scanning
type ScanError struct {
	Path    string
	Message string
}

// nonCategoryDirs are top-level overlay directories that never hold packages.
var nonCategoryDirs = map[string]bool{
	"profiles":  true,
	"metadata":  true,
	"eclass":    true,
	"licenses":  true,
	"scripts":   true,
	"distfiles": true,
	"packages":  true,
}

func isCategory(name string) bool {
	return !strings.HasPrefix(name, ".") && !nonCategoryDirs[name]
}

// ScanOverlay lists every package of the overlay with its ebuild versions,
// sorted by category/package. Packages whose atom does not match one of
// patterns are skipped; no patterns selects everything.
func ScanOverlay(overlayPath string, patterns ...string) (*ScanResult, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, &InvalidPatternError{Pattern: p}
		}
	}

	entries, err := os.ReadDir(overlayPath)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{OverlayPath: overlayPath}
	for _, entry := range entries {
		if !entry.IsDir() || !isCategory(entry.Name()) {
			continue
		}
		packages, errs := scanCategory(filepath.Join(overlayPath, entry.Name()), entry.Name(), patterns)
		result.Packages = append(result.Packages, packages...)
		result.Errors = append(result.Errors, errs...)
	}

	slices.SortFunc(result.Packages, func(a, b PackageInfo) int {
		return strings.Compare(a.FullName(), b.FullName())
	})
	return result, nil
}

// InvalidPatternError reports a malformed package glob.
type InvalidPatternError struct {
	Pattern string
}

func (e *InvalidPatternError) Error() string {
	return "invalid package pattern: " + e.Pattern
}

func matches(atom string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, atom); ok {
			return true
		}
	}
	return false
}

func scanCategory(categoryPath, category string, patterns []string) ([]PackageInfo, []ScanError) {
	entries, err := os.ReadDir(categoryPath)
	if err != nil {
		return nil, []ScanError{{Path: categoryPath, Message: err.Error()}}
	}

	var packages []PackageInfo
	var errs []ScanError
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !matches(category+"/"+entry.Name(), patterns) {
			continue
		}

		pkgPath := filepath.Join(categoryPath, entry.Name())
		pkg, err := scanPackage(pkgPath, category, entry.Name())
		if err != nil {
			errs = append(errs, ScanError{Path: pkgPath, Message: err.Error()})
			continue
		}
		if pkg != nil {
			packages = append(packages, *pkg)
		}
	}
	return packages, errs
}

// scanPackage returns nil without error for directories holding no ebuild.
func scanPackage(pkgPath, category, name string) (*PackageInfo, error) {
	entries, err := os.ReadDir(pkgPath)
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ebuild") {
			continue
		}
		eb, err := ebuild.ParsePath(filepath.Join(category, name, entry.Name()))
		if err != nil {
			continue
		}
		versions = append(versions, eb.Version)
	}
	if len(versions) == 0 {
		return nil, nil
	}

	slices.SortFunc(versions, ebuild.CompareVersions)
	return &PackageInfo{
		Category: category,
		Package:  name,
		Versions: versions,
		Latest:   LatestStable(versions),
	}, nil
}

// LatestStable returns the highest version that is neither live nor
// malformed, or "" when there is none.
func LatestStable(versions []string) string {
	latest := ""
	for _, v := range versions {
		if strings.HasPrefix(v, "9999") || ebuild.ParseVersion(v).Malformed {
			continue
		}
		if latest == "" || ebuild.CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// FullName returns the category/package format
func (p *PackageInfo) FullName() string {
	return p.Category + "/" + p.Package
}

// HasLive reports whether the package carries a live (-9999) ebuild.
func (p *PackageInfo) HasLive() bool {
	return slices.ContainsFunc(p.Versions, func(v string) bool {
		return strings.HasPrefix(v, "9999")
	})
}

func (p *PackageInfo) String() string {
	if p.Latest == "" {
		return p.FullName()
	}
	return p.FullName() + "-" + p.Latest
}
