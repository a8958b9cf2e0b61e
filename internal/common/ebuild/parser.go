package ebuild

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrInvalidEbuildPath = errors.New("invalid ebuild path format")
	ErrNoEbuildFound     = errors.New("no ebuild file found for package")
)

// ebuildPathRegex matches: category/package/package-version.ebuild
// Version can include: digits, dots, underscores, letters, hyphens (for -r1 revisions)
var ebuildPathRegex = regexp.MustCompile(`^([^/]+)/([^/]+)/([^/]+)-(\d+[\d.]*[\w._-]*)\.ebuild$`)

// liveVersion is the version used by live (VCS) ebuilds
const liveVersion = "9999"

// Ebuild represents a parsed ebuild file path
type Ebuild struct {
	Category string // e.g., "app-misc"
	Package  string // e.g., "hello"
	Name     string // e.g., "hello" (same as Package for simple cases)
	Version  string // e.g., "1.0", "1.0_rc1", "1.0-r1"
}

// ParsePath parses an ebuild path and extracts category, package, name, and version
// Expected format: category/package/package-version.ebuild
func ParsePath(path string) (*Ebuild, error) {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "./")

	matches := ebuildPathRegex.FindStringSubmatch(path)
	if matches == nil {
		return nil, ErrInvalidEbuildPath
	}

	// For packages like "firefox-bin", the filename prefix must be "firefox-bin"
	if matches[3] != matches[2] {
		return nil, ErrInvalidEbuildPath
	}

	return &Ebuild{
		Category: matches[1],
		Package:  matches[2],
		Name:     matches[3],
		Version:  matches[4],
	}, nil
}

// FullName returns the category/package format
func (e *Ebuild) FullName() string {
	return e.Category + "/" + e.Package
}

// String returns the full ebuild path format: category/package/package-version.ebuild
func (e *Ebuild) String() string {
	return e.Category + "/" + e.Package + "/" + e.FileName()
}

// FileName returns package-version.ebuild
func (e *Ebuild) FileName() string {
	return e.Name + "-" + e.Version + ".ebuild"
}

// ParsedVersion parses the ebuild's version string.
func (e *Ebuild) ParsedVersion() Version {
	return ParseVersion(e.Version)
}

// IsLive reports whether this is a live (-9999) ebuild.
func (e *Ebuild) IsLive() bool {
	return strings.HasPrefix(e.Version, liveVersion)
}

// WithVersion returns a copy of the ebuild pointing at another version.
func (e *Ebuild) WithVersion(version string) *Ebuild {
	cp := *e
	cp.Version = version
	return &cp
}

// SplitAtom splits "category/package" into its two parts.
func SplitAtom(atom string) (category, pkg string, ok bool) {
	parts := strings.Split(atom, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Latest returns the highest non-live, well-formed ebuild of a package in an overlay.
func Latest(overlayPath, category, pkg string) (*Ebuild, error) {
	entries, err := os.ReadDir(filepath.Join(overlayPath, category, pkg))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoEbuildFound
		}
		return nil, err
	}

	var best *Ebuild
	var bestVersion Version
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ebuild") {
			continue
		}

		eb, err := ParsePath(filepath.Join(category, pkg, entry.Name()))
		if err != nil || eb.IsLive() {
			continue
		}

		v := eb.ParsedVersion()
		if v.Malformed {
			continue
		}
		if best == nil || Compare(v, bestVersion) == Greater {
			best, bestVersion = eb, v
		}
	}

	if best == nil {
		return nil, ErrNoEbuildFound
	}
	return best, nil
}
