package gate

import (
	"fmt"

	"github.com/obentoo/ebumper/internal/common/ebuild"
)

// DefaultConfidenceThreshold is the minimum confidence for an automatic update.
// Anything below is held for human review.
const DefaultConfidenceThreshold = 0.7

// DecisionKind is the outcome of one check cycle.
type DecisionKind int

const (
	// NoOp means nothing to do: no consensus or already up to date
	NoOp DecisionKind = iota
	// Update means the overlay should move to Decision.Target
	Update
	// Hold means the candidate needs human review before it can be applied
	Hold
	// Conflict means the candidate is older than, or not comparable to, the current version
	Conflict
)

// String returns the lower-case name used in queues and history.
func (k DecisionKind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case Update:
		return "update"
	case Hold:
		return "hold"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// ParseDecisionKind is the inverse of DecisionKind.String.
func ParseDecisionKind(s string) (DecisionKind, bool) {
	for _, k := range []DecisionKind{NoOp, Update, Hold, Conflict} {
		if k.String() == s {
			return k, true
		}
	}
	return NoOp, false
}

// Decision reasons.
const (
	ReasonNoConsensus    = "no consensus"
	ReasonLowConfidence  = "low confidence"
	ReasonUnparsable     = "current version unparsable"
	ReasonRegression     = "upstream candidate is older than current"
	ReasonUpToDate       = "already up to date"
	ReasonNewerAvailable = "newer version available"
)

// Decision is the single authoritative verdict for one package.
type Decision struct {
	Kind DecisionKind
	// Target is the consensus candidate, nil for a NoOp without consensus
	Target     *ebuild.Version
	Reason     string
	Confidence float64
}

// Mutates reports whether the decision permits changing the overlay.
// Only Update does.
func (d Decision) Mutates() bool {
	return d.Kind == Update
}

// Err maps the decision onto the error taxonomy. Update and an up-to-date
// NoOp return nil.
func (d Decision) Err() error {
	switch d.Kind {
	case Hold:
		return fmt.Errorf("%w: %.2f", ErrLowConfidence, d.Confidence)
	case Conflict:
		if d.Reason == ReasonUnparsable {
			return fmt.Errorf("%w: %w", ErrRegressionConflict, ErrMalformedVersion)
		}
		return fmt.Errorf("%w: %s", ErrRegressionConflict, d.Reason)
	case NoOp:
		if d.Target == nil {
			return ErrNoConsensus
		}
	}
	return nil
}

// String renders the decision for logs.
func (d Decision) String() string {
	if d.Target == nil {
		return fmt.Sprintf("%s (%s)", d.Kind, d.Reason)
	}
	return fmt.Sprintf("%s %s (%s, confidence %.2f)", d.Kind, d.Target, d.Reason, d.Confidence)
}

// Decide turns a consensus into a decision against the current overlay
// version. Rules apply in order: no candidate, low confidence, incomparable,
// older, equal, newer.
func Decide(current ebuild.Version, c Consensus, threshold float64) Decision {
	if !c.HasCandidate() {
		return Decision{Kind: NoOp, Reason: ReasonNoConsensus}
	}

	target := *c.Candidate
	d := Decision{Target: &target, Confidence: c.Confidence}

	if c.Confidence < threshold {
		d.Kind, d.Reason = Hold, ReasonLowConfidence
		return d
	}

	switch ebuild.Compare(target, current) {
	case ebuild.Incomparable:
		d.Kind, d.Reason = Conflict, ReasonUnparsable
	case ebuild.Less:
		d.Kind, d.Reason = Conflict, ReasonRegression
	case ebuild.Equal:
		d.Kind, d.Reason = NoOp, ReasonUpToDate
	default:
		d.Kind, d.Reason = Update, ReasonNewerAvailable
	}
	return d
}
