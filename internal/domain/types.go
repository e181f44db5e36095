package domain

import (
	"time"
)

// EnvironmentStatus labels the lifecycle state of an execution environment.
type EnvironmentStatus string

const (
	// EnvironmentStatusActive: the environment is provisioned and usable.
	EnvironmentStatusActive EnvironmentStatus = "active"
	// EnvironmentStatusStale: the environment exists but its dependency set
	// no longer matches any registered tool's needs.
	EnvironmentStatusStale EnvironmentStatus = "stale"
	// EnvironmentStatusRemoved: the environment has been deprecated and must
	// not be assigned to new drafts.
	EnvironmentStatusRemoved EnvironmentStatus = "removed"
)

// EnvironmentDescriptor identifies one isolated execution context.
// Other components hold the ID only; the registry owns the record.
type EnvironmentDescriptor struct {
	ID           string            `json:"id"`
	Interpreter  string            `json:"interpreter"`
	Dependencies []string          `json:"dependencies"`
	Status       EnvironmentStatus `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// ToolStatus labels the lifecycle state of one tool version.
type ToolStatus string

const (
	// ToolStatusDraft: produced but not yet validated.
	ToolStatusDraft ToolStatus = "draft"
	// ToolStatusValidating: currently owned by a validation cycle.
	ToolStatusValidating ToolStatus = "validating"
	// ToolStatusActive: validated and eligible for reuse lookups.
	ToolStatusActive ToolStatus = "active"
	// ToolStatusDeprecated: superseded by a later version. Never deleted.
	ToolStatusDeprecated ToolStatus = "deprecated"
)

// Parameter is one declared tool parameter. Required is a tri-state:
// nil means the producer never declared the flag, which stage 1 of the
// validation pipeline reports as a schema defect.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    *bool  `json:"required,omitempty"`
}

// ToolDescriptor is one version of one tool. Versions are monotonic
// starting at 1; the artifact for version n is immutable once version
// n+1 exists.
type ToolDescriptor struct {
	Name             string      `json:"name"`
	Version          int         `json:"version"`
	ArtifactLocation string      `json:"artifactLocation"`
	ConfigLocation   string      `json:"configLocation"`
	EnvironmentID    string      `json:"environmentId"`
	Status           ToolStatus  `json:"status"`
	Description      string      `json:"description"`
	Parameters       []Parameter `json:"parameters"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Candidate is the tuple the build collaborator hands to the controller
// for a fresh draft.
type Candidate struct {
	Name             string
	ArtifactLocation string
	ConfigLocation   string
	EnvironmentID    string
	Description      string
	Parameters       []Parameter
}

// Stage names one ordered check within the validation pipeline.
type Stage string

const (
	StageFormatCheck      Stage = "format_check"
	StageDescriptionCheck Stage = "description_check"
	StageSchemaRetrieval  Stage = "schema_retrieval"
	StageCaseConstruction Stage = "case_construction"
	StageAvailability     Stage = "availability"
	StageConsistency      Stage = "consistency"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageFormatCheck,
		StageDescriptionCheck,
		StageSchemaRetrieval,
		StageCaseConstruction,
		StageAvailability,
		StageConsistency,
	}
}

// StageOutcome is the result of one stage.
type StageOutcome string

const (
	StageOutcomePass StageOutcome = "pass"
	StageOutcomeFail StageOutcome = "fail"
)

// StageResult records one stage execution. Params carries the offending
// parameter or case names when the stage reports per-item defects.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Outcome  StageOutcome  `json:"outcome"`
	Code     ErrorCode     `json:"code,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Params   []string      `json:"params,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ValidationReport is the immutable record of one pipeline run.
type ValidationReport struct {
	ToolName  string        `json:"toolName"`
	Version   int           `json:"version"`
	Stages    []StageResult `json:"stages"`
	Passed    bool          `json:"passed"`
	CreatedAt time.Time     `json:"createdAt"`
}

// FailingStage returns the stage that halted the run, if any.
func (r ValidationReport) FailingStage() (StageResult, bool) {
	for _, result := range r.Stages {
		if result.Outcome == StageOutcomeFail {
			return result, true
		}
	}
	return StageResult{}, false
}

// CaseKind classifies a generated test case.
type CaseKind string

const (
	CaseKindNormal   CaseKind = "normal"
	CaseKindBoundary CaseKind = "boundary"
	CaseKindAbnormal CaseKind = "abnormal"
)

// TestCase is one generated invocation scenario. ExpectError marks
// abnormal cases whose predicate is "the call is rejected" rather than
// "the output is usable".
type TestCase struct {
	Name        string         `json:"name"`
	Kind        CaseKind       `json:"kind"`
	Input       map[string]any `json:"input"`
	ExpectError bool           `json:"expectError"`
}

// CorrectionKind is the closed set of fixes the fix manager applies.
type CorrectionKind string

const (
	CorrectionDescriptionRewrite CorrectionKind = "description_rewrite"
	CorrectionParameterAddition  CorrectionKind = "parameter_addition"
	CorrectionFunctionRename     CorrectionKind = "function_rename"
	CorrectionServerRename       CorrectionKind = "server_rename"
)

// Correction is one requested fix. Exactly the fields its kind needs
// are set: Description for rewrites, Parameters for additions, NewName
// for renames.
type Correction struct {
	Kind        CorrectionKind `json:"kind"`
	Description string         `json:"description,omitempty"`
	Parameters  []Parameter    `json:"parameters,omitempty"`
	NewName     string         `json:"newName,omitempty"`
}

// FixRecord is the append-only audit entry for one applied fix.
type FixRecord struct {
	ToolName      string       `json:"toolName"`
	SourceVersion int          `json:"sourceVersion"`
	NewVersion    int          `json:"newVersion"`
	Corrections   []Correction `json:"corrections"`
	Reason        string       `json:"reason"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// RunStatus labels a terminal controller state.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunResult is the structured outcome the controller reports upward.
type RunResult struct {
	Status   RunStatus `json:"status"`
	ToolName string    `json:"toolName"`
	Version  int       `json:"version"`
	Reason   string    `json:"reason,omitempty"`
}
