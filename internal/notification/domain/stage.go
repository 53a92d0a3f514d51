package domain

// Stage describes how much of the compute-minute quota remains.
type Stage string

const (
	StageNone     Stage = "none"
	StageWarning  Stage = "warning"
	StageDanger   Stage = "danger"
	StageExceeded Stage = "exceeded"
)

// Thresholds are percent-remaining boundaries, not percent-used.
const (
	WarningThreshold = 25
	DangerThreshold  = 5
)

// ComputeStage derives the stage from the limit and current usage. A nil or
// zero limit means unlimited, which never alerts.
func ComputeStage(limit *int64, used float64) Stage {
	if limit == nil || *limit <= 0 {
		return StageNone
	}

	remaining := 100 * (float64(*limit) - used) / float64(*limit)
	switch {
	case remaining <= 0:
		return StageExceeded
	case remaining <= DangerThreshold:
		return StageDanger
	case remaining <= WarningThreshold:
		return StageWarning
	default:
		return StageNone
	}
}

// Percentage returns the display threshold associated with the stage.
func (s Stage) Percentage() int {
	switch s {
	case StageWarning:
		return WarningThreshold
	case StageDanger:
		return DangerThreshold
	default:
		return 0
	}
}

// RunningOut reports whether the quota is low but not yet spent.
func (s Stage) RunningOut() bool {
	return s == StageWarning || s == StageDanger
}

// NoRemainingMinutes reports whether the quota is fully spent.
func (s Stage) NoRemainingMinutes() bool {
	return s == StageExceeded
}

// FeatureID is the dismissal key for the stage, so dismissing a warning does
// not suppress the later danger or exceeded callouts.
func (s Stage) FeatureID() string {
	return "compute_minutes_" + string(s) + "_callout"
}
