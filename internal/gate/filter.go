package gate

import "github.com/samber/lo"

// Filter drops malformed observations and, unless allowPrerelease is set,
// observations ranked below a final release. Input order is preserved.
func Filter(obs []Observation, allowPrerelease bool) []Observation {
	return lo.Filter(obs, func(o Observation, _ int) bool {
		if o.Version.Malformed {
			return false
		}
		return allowPrerelease || !o.Version.IsPrerelease()
	})
}
