package interproject

import "git.home.luguber.info/inful/buildmesh/internal/build"

// precedence ranks non-succeeded finished mapping states; higher wins.
var precedence = map[build.InterProjectState]int{
	build.InterProjectFailed:    1,
	build.InterProjectCancelled: 2,
}

// Aggregate computes the inter-project state implied by its mappings.
//
// Any unfinished mapping yields RUNNING. Otherwise the result is SUCCEEDED unless
// some mapping did not succeed, in which case CANCELLED beats FAILED. No mappings
// at all counts as SUCCEEDED.
func Aggregate(mappings []build.InterProjectMapping) build.InterProjectState {
	state := build.InterProjectSucceeded
	for _, m := range mappings {
		if !m.State.IsFinished() {
			return build.InterProjectRunning
		}
		if m.State != build.InterProjectSucceeded && precedence[m.State] > precedence[state] {
			state = m.State
		}
	}
	return state
}
