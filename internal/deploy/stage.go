package deploy

// Stage identifies how far a deployment attempt has progressed. Transitions
// are strictly sequential; the only branching is success versus failure, and
// once a deployment fails no further stage runs.
type Stage string

const (
	StageIdle                Stage = "idle"
	StageBackingUp           Stage = "backing_up"
	StageCapturingProtected  Stage = "capturing_protected"
	StageFetching            Stage = "fetching"
	StageReplacing           Stage = "replacing"
	StageRestoring           Stage = "restoring"
	StageSyncingDependencies Stage = "syncing_dependencies"
	StagePruning             Stage = "pruning"
	StageDone                Stage = "done"
)

// MutatesTree reports whether reaching the stage means the live application
// tree may no longer match the pre-deployment snapshot. Failures before this
// point leave the tree untouched.
func (s Stage) MutatesTree() bool {
	switch s {
	case StageReplacing, StageRestoring, StageSyncingDependencies, StagePruning, StageDone:
		return true
	}
	return false
}
