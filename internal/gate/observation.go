package gate

import (
	"time"

	"github.com/obentoo/ebumper/internal/common/ebuild"
)

// Well-known observation origins.
const (
	OriginGitHub    = "github"
	OriginArchLinux = "arch_linux"
	OriginPyPI      = "pypi"
	OriginNPM       = "npm"
	OriginUpstream  = "upstream"
	OriginEbuild    = "local-ebuild"
)

// RawVersion is a version string exactly as reported by its origin.
type RawVersion struct {
	Origin string `json:"origin"`
	Value  string `json:"value"`
}

// Observation is one source's report of the latest upstream version.
type Observation struct {
	Raw        RawVersion
	Version    ebuild.Version
	Weight     float64
	ObservedAt time.Time
}

// NewObservation parses value and clamps weight into [0, 1].
func NewObservation(origin, value string, weight float64, at time.Time) Observation {
	return Observation{
		Raw:        RawVersion{Origin: origin, Value: value},
		Version:    ebuild.ParseVersion(value),
		Weight:     clamp01(weight),
		ObservedAt: at,
	}
}

// Source returns the origin that produced the observation.
func (o Observation) Source() string {
	return o.Raw.Origin
}

// Expired reports whether the observation is older than window at now.
// A non-positive window never expires.
func (o Observation) Expired(window time.Duration, now time.Time) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(o.ObservedAt) >= window
}

func clamp01(f float64) float64 {
	switch {
	case f != f: // NaN
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
