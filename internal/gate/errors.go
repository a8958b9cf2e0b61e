package gate

import (
	"errors"

	"github.com/obentoo/ebumper/internal/common/ebuild"
)

// Error taxonomy for check-cycle outcomes. None of these are returned by the
// gate functions themselves; Decision.Err maps a verdict onto them.
var (
	// ErrMalformedVersion is returned when a version string could not be parsed
	ErrMalformedVersion = ebuild.ErrMalformedVersion
	// ErrNoConsensus is returned when no candidate survived filtering
	ErrNoConsensus = errors.New("could not determine latest version")
	// ErrLowConfidence is returned when consensus exists but is below the threshold
	ErrLowConfidence = errors.New("consensus confidence below threshold")
	// ErrRegressionConflict is returned when the candidate is older than or incomparable to the current version
	ErrRegressionConflict = errors.New("upstream candidate conflicts with current version")
)
