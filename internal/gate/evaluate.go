package gate

import "github.com/obentoo/ebumper/internal/common/ebuild"

// Policy holds the tunables of a check cycle.
type Policy struct {
	AllowPrerelease     bool
	ConfidenceThreshold float64
	AgreementThreshold  float64
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		AgreementThreshold:  DefaultAgreementThreshold,
	}
}

// Verdict carries every intermediate of one check cycle.
type Verdict struct {
	// Filtered are the observations that survived Filter
	Filtered  []Observation
	Consensus Consensus
	Decision  Decision
}

// Evaluate runs Filter, Resolve and Decide in that order.
func Evaluate(current ebuild.Version, obs []Observation, p Policy) Verdict {
	filtered := Filter(obs, p.AllowPrerelease)
	consensus := Resolve(filtered, WithAgreementThreshold(p.AgreementThreshold))
	return Verdict{
		Filtered:  filtered,
		Consensus: consensus,
		Decision:  Decide(current, consensus, p.ConfidenceThreshold),
	}
}
