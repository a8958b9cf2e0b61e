package gate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/obentoo/ebumper/internal/common/ebuild"
)

// DefaultAgreementThreshold is the share of total weight the winning group
// must exceed for sources to count as agreeing.
const DefaultAgreementThreshold = 0.5

// weightEpsilon absorbs float noise when comparing group weights (0.4+0.3 vs 0.7)
const weightEpsilon = 1e-9

// Group is the set of observations that reported the same version.
type Group struct {
	// Version is the first observed representative of the group
	Version ebuild.Version
	// Weight is the sum of the members' reliability weights
	Weight float64
	// Sources lists member origins in observation order
	Sources []string
}

// Consensus is the combined verdict of all observations for one package.
type Consensus struct {
	// Candidate is the chosen version, nil when there is no consensus
	Candidate *ebuild.Version
	// Confidence is winning weight / total weight, in [0, 1]
	Confidence float64
	// SourcesAgree is true when one group exists or the winner holds a majority
	SourcesAgree bool
	// Notes describe every losing group for human review
	Notes []string
	// Groups are sorted winner first
	Groups []Group
}

// HasCandidate reports whether a version was chosen.
func (c Consensus) HasCandidate() bool {
	return c.Candidate != nil
}

// NeedsReview reports whether a human should look at this result before it
// is applied: sources disagree or confidence is under threshold.
func (c Consensus) NeedsReview(threshold float64) bool {
	return !c.HasCandidate() || !c.SourcesAgree || c.Confidence < threshold
}

type resolveConfig struct {
	agreementThreshold float64
}

// ResolveOption configures Resolve.
type ResolveOption func(*resolveConfig)

// WithAgreementThreshold overrides DefaultAgreementThreshold.
func WithAgreementThreshold(threshold float64) ResolveOption {
	return func(c *resolveConfig) {
		c.agreementThreshold = clamp01(threshold)
	}
}

// Resolve combines observations by weighted majority. Observations reporting
// equal versions are grouped and their weights summed; the heaviest group
// wins, ties going to the greater version. Malformed observations are ignored.
func Resolve(obs []Observation, opts ...ResolveOption) Consensus {
	cfg := resolveConfig{agreementThreshold: DefaultAgreementThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}

	groups := groupObservations(obs)
	total := lo.SumBy(groups, func(g Group) float64 { return g.Weight })

	if len(groups) == 0 || total <= 0 {
		return Consensus{
			Groups: groups,
			Notes:  groupNotes(groups),
		}
	}

	winner := groups[0]
	candidate := winner.Version
	share := winner.Weight / total

	return Consensus{
		Candidate:    &candidate,
		Confidence:   clamp01(share),
		SourcesAgree: len(groups) == 1 || share > cfg.agreementThreshold,
		Notes:        groupNotes(groups[1:]),
		Groups:       groups,
	}
}

// groupObservations groups well-formed observations by version key and sorts
// the groups by weight (descending) then version (descending).
func groupObservations(obs []Observation) []Group {
	valid := lo.Filter(obs, func(o Observation, _ int) bool { return !o.Version.Malformed })

	var order []string
	byKey := make(map[string]*Group)
	for _, o := range valid {
		key := o.Version.Key()
		g, ok := byKey[key]
		if !ok {
			g = &Group{Version: o.Version}
			byKey[key] = g
			order = append(order, key)
		}
		g.Weight += o.Weight
		g.Sources = append(g.Sources, o.Source())
	}

	groups := lo.Map(order, func(key string, _ int) Group { return *byKey[key] })
	sort.SliceStable(groups, func(i, j int) bool {
		if d := groups[i].Weight - groups[j].Weight; math.Abs(d) > weightEpsilon {
			return d > 0
		}
		return ebuild.Compare(groups[i].Version, groups[j].Version) == ebuild.Greater
	})
	return groups
}

func groupNotes(groups []Group) []string {
	return lo.Map(groups, func(g Group, _ int) string {
		return fmt.Sprintf("%s (weight %.2f) reported by %s", g.Version, g.Weight, strings.Join(g.Sources, ", "))
	})
}
