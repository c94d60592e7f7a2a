package build

// Kind tags the two build variants.
type Kind string

const (
	KindRepository Kind = "repository"
	KindModule     Kind = "module"
)

// State is the lifecycle state shared by repository and module builds.
type State string

const (
	StateQueued    State = "QUEUED"
	StateLaunching State = "LAUNCHING"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
	StateUnstable  State = "UNSTABLE"
	// StateSkipped is only valid for module builds.
	StateSkipped State = "SKIPPED"
)

// RepositoryStates lists every state a repository build can be in.
var RepositoryStates = []State{
	StateQueued, StateLaunching, StateRunning,
	StateSucceeded, StateFailed, StateCancelled, StateUnstable,
}

// ModuleStates lists every state a module build can be in.
var ModuleStates = append(append([]State(nil), RepositoryStates...), StateSkipped)

// IsFinished reports whether the state is terminal.
func (s State) IsFinished() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateUnstable, StateSkipped:
		return true
	default:
		return false
	}
}

// IsActive reports whether the build is waiting or executing.
func (s State) IsActive() bool { return s != "" && !s.IsFinished() }

// ValidFor reports whether s is a legal state for kind.
func (s State) ValidFor(kind Kind) bool {
	if s == StateSkipped {
		return kind == KindModule
	}
	switch s {
	case StateQueued, StateLaunching, StateRunning, StateSucceeded, StateFailed, StateCancelled, StateUnstable:
		return true
	}
	return false
}

// CanTransition reports whether a build may move from s to next.
// Finished builds never move again.
func (s State) CanTransition(next State) bool {
	if s.IsFinished() || s == next {
		return false
	}
	switch next {
	case StateQueued:
		return false
	case StateLaunching:
		return s == StateQueued
	case StateRunning:
		return s == StateQueued || s == StateLaunching
	default:
		return next.IsFinished()
	}
}

// TriggerType says what caused a repository build.
type TriggerType string

const (
	TriggerPush           TriggerType = "PUSH"
	TriggerBranchCreation TriggerType = "BRANCH_CREATION"
	TriggerManual         TriggerType = "MANUAL"
	TriggerInterProject   TriggerType = "INTER_PROJECT"
	TriggerTimer          TriggerType = "TIMER"
)

// InterProjectState is the aggregate state of an inter-project build and of its mappings.
type InterProjectState string

const (
	InterProjectQueued    InterProjectState = "QUEUED"
	InterProjectRunning   InterProjectState = "RUNNING"
	InterProjectSucceeded InterProjectState = "SUCCEEDED"
	InterProjectFailed    InterProjectState = "FAILED"
	InterProjectCancelled InterProjectState = "CANCELLED"
)

// IsFinished reports whether the inter-project state is terminal.
func (s InterProjectState) IsFinished() bool {
	return s == InterProjectSucceeded || s == InterProjectFailed || s == InterProjectCancelled
}

// MirrorModuleState maps a finished module build state onto a mapping state.
// Unfinished states map to RUNNING.
func MirrorModuleState(s State) InterProjectState {
	switch s {
	case StateSucceeded:
		return InterProjectSucceeded
	case StateFailed, StateUnstable:
		return InterProjectFailed
	case StateCancelled, StateSkipped:
		return InterProjectCancelled
	case StateQueued:
		return InterProjectQueued
	default:
		return InterProjectRunning
	}
}
