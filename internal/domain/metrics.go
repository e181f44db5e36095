package domain

import "time"

// Metrics is implemented by the telemetry layer. All methods must be
// safe for concurrent use; a nil Metrics is treated as a no-op by every
// consumer.
type Metrics interface {
	ObserveStage(stage Stage, outcome StageOutcome, duration time.Duration)
	ObservePipelineRun(toolName string, passed bool, duration time.Duration)
	ObserveFix(kind CorrectionKind)
	ObserveCycle(status RunStatus, fixCycles int, duration time.Duration)
	SetActiveCycles(count int)
}
