package ebuild

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedVersion is the sentinel matched by MalformedVersionError.
var ErrMalformedVersion = errors.New("malformed version")

// MalformedVersionError carries the raw string that could not be parsed.
type MalformedVersionError struct {
	Raw string
}

func (e *MalformedVersionError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMalformedVersion, e.Raw)
}

// Is reports whether target is ErrMalformedVersion.
func (e *MalformedVersionError) Is(target error) bool {
	return target == ErrMalformedVersion
}

// Suffix is the release-stage rank of a version suffix.
// The zero value is the final release rank.
type Suffix int

// Suffix ranks (lower = earlier in release cycle)
const (
	SuffixAlpha Suffix = -4
	SuffixBeta  Suffix = -3
	SuffixPre   Suffix = -2
	SuffixRC    Suffix = -1
	SuffixNone  Suffix = 0 // release version
	SuffixP     Suffix = 1 // patch
)

var suffixNames = map[Suffix]string{
	SuffixAlpha: "alpha",
	SuffixBeta:  "beta",
	SuffixPre:   "pre",
	SuffixRC:    "rc",
	SuffixNone:  "",
	SuffixP:     "p",
}

var suffixByName = map[string]Suffix{
	"alpha": SuffixAlpha,
	"beta":  SuffixBeta,
	"pre":   SuffixPre,
	"rc":    SuffixRC,
	"p":     SuffixP,
}

// String returns the suffix tag, empty for a final release.
func (s Suffix) String() string {
	return suffixNames[s]
}

// IsPrerelease reports whether the suffix ranks below a final release.
func (s Suffix) IsPrerelease() bool {
	return s < SuffixNone
}

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Less Ordering = iota - 1
	Equal
	Greater
	Incomparable
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "incomparable"
	}
}

// Version is a parsed Gentoo-style version.
type Version struct {
	// Raw is the input string as observed
	Raw string
	// Components are the dot separated numeric parts (1.0.1 -> [1, 0, 1])
	Components []uint64
	// Suffix is the release-stage tag (_rc1, _beta2, _p1)
	Suffix Suffix
	// SuffixNum is the number following the suffix tag, 0 when absent
	SuffixNum uint64
	// Revision is the -rN counter, 0 when absent
	Revision uint64
	// Malformed is set when Raw could not be parsed
	Malformed bool
}

// revisionRegex matches -r1, _r2, etc.
var revisionRegex = regexp.MustCompile(`(?i)[-_]r(\d+)$`)

// numericRegex matches the leading dotted numeric part
var numericRegex = regexp.MustCompile(`^\d+(\.\d+)*`)

// suffixRegex matches _rc1, -beta2, alpha, RC.1, p3 after the numeric part
var suffixRegex = regexp.MustCompile(`^[_-]?(alpha|beta|pre|rc|p)\.?(\d*)$`)

// ParseVersion parses a raw version string. It never fails: input that does
// not follow the version grammar yields a Version with Malformed set.
func ParseVersion(raw string) Version {
	v := Version{Raw: raw}
	s := strings.TrimSpace(raw)

	// Strip one leading v/V when followed by a digit (v1.2.3)
	if len(s) > 1 && (s[0] == 'v' || s[0] == 'V') && isDigit(s[1]) {
		s = s[1:]
	}

	// Extract revision first (-r1, _r2)
	if m := revisionRegex.FindStringSubmatchIndex(s); m != nil {
		rev, err := strconv.ParseUint(s[m[2]:m[3]], 10, 64)
		if err != nil {
			return malformed(raw)
		}
		v.Revision = rev
		s = s[:m[0]]
	}

	numeric := numericRegex.FindString(s)
	if numeric == "" {
		return malformed(raw)
	}

	for _, part := range strings.Split(numeric, ".") {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return malformed(raw)
		}
		v.Components = append(v.Components, n)
	}

	rest := s[len(numeric):]
	if rest == "" {
		return v
	}

	m := suffixRegex.FindStringSubmatch(strings.ToLower(rest))
	if m == nil {
		return malformed(raw)
	}
	v.Suffix = suffixByName[m[1]]
	if m[2] != "" {
		n, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return malformed(raw)
		}
		v.SuffixNum = n
	}

	return v
}

func malformed(raw string) Version {
	return Version{Raw: raw, Malformed: true}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Err returns a *MalformedVersionError for malformed versions, nil otherwise.
func (v Version) Err() error {
	if v.Malformed {
		return &MalformedVersionError{Raw: v.Raw}
	}
	return nil
}

// IsPrerelease reports whether the version carries an alpha/beta/pre/rc suffix.
func (v Version) IsPrerelease() bool {
	return !v.Malformed && v.Suffix.IsPrerelease()
}

// String returns the canonical form, e.g. 1.2.3_rc1-r2.
// Malformed versions render as their raw input.
func (v Version) String() string {
	if v.Malformed {
		return v.Raw
	}
	return v.format(v.Components)
}

// Key returns the canonical form with trailing zero components trimmed, so
// that versions comparing Equal share the same key (1.2 and 1.2.0).
func (v Version) Key() string {
	if v.Malformed {
		return v.Raw
	}
	comps := v.Components
	for len(comps) > 1 && comps[len(comps)-1] == 0 {
		comps = comps[:len(comps)-1]
	}
	return v.format(comps)
}

func (v Version) format(comps []uint64) string {
	var b strings.Builder
	for i, c := range comps {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(c, 10))
	}
	if v.Suffix != SuffixNone {
		b.WriteByte('_')
		b.WriteString(v.Suffix.String())
		if v.SuffixNum > 0 {
			b.WriteString(strconv.FormatUint(v.SuffixNum, 10))
		}
	}
	if v.Revision > 0 {
		b.WriteString("-r")
		b.WriteString(strconv.FormatUint(v.Revision, 10))
	}
	return b.String()
}

// Compare compares v with other. See Compare.
func (v Version) Compare(other Version) Ordering {
	return Compare(v, other)
}

// Compare orders two versions: numeric components first (shorter padded with
// zeros), then suffix rank (alpha < beta < pre < rc < release < p), then the
// suffix number, then the revision. Malformed input is Incomparable.
func Compare(a, b Version) Ordering {
	if a.Malformed || b.Malformed {
		return Incomparable
	}

	if cmp := compareComponents(a.Components, b.Components); cmp != Equal {
		return cmp
	}
	if a.Suffix != b.Suffix {
		if a.Suffix < b.Suffix {
			return Less
		}
		return Greater
	}
	if cmp := compareUint(a.SuffixNum, b.SuffixNum); cmp != Equal {
		return cmp
	}
	return compareUint(a.Revision, b.Revision)
}

// compareComponents compares two numeric sequences, padding the shorter with zeros
func compareComponents(a, b []uint64) Ordering {
	maxLen := max(len(a), len(b))

	for i := 0; i < maxLen; i++ {
		var av, bv uint64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if cmp := compareUint(av, bv); cmp != Equal {
			return cmp
		}
	}
	return Equal
}

func compareUint(a, b uint64) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

// CompareVersions compares two Gentoo-style version strings
// Returns: -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
// Malformed versions sort below well-formed ones and by raw string among themselves.
func CompareVersions(v1, v2 string) int {
	a, b := ParseVersion(v1), ParseVersion(v2)

	switch {
	case a.Malformed && b.Malformed:
		return strings.Compare(v1, v2)
	case a.Malformed:
		return -1
	case b.Malformed:
		return 1
	}

	return int(Compare(a, b))
}
