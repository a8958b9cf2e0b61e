// Package gate decides whether an upstream version observed by one or more
// sources should replace the version currently in the overlay.
//
// A check cycle for one package runs, strictly in order:
//
//	obs := gate.Filter(observations, allowPrerelease)
//	consensus := gate.Resolve(obs)
//	decision := gate.Decide(current, consensus, threshold)
//
// or the same pipeline through Evaluate. Every function is pure: inputs are
// values, nothing is cached or shared, and identical inputs always produce the
// identical Decision. Failure is encoded as data (malformed versions, Hold and
// Conflict decisions) rather than returned errors, so callers must only mutate
// the overlay when Decision.Mutates reports true.
package gate
