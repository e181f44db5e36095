package validate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"foundry/internal/domain"
)

// Pipeline runs the six ordered validation stages against one tool
// version. It is fail-fast: the first failing stage halts the run and
// later stages never execute. A re-run after a fix always starts at
// stage 1 against the new version; no partial credit survives, because
// a fix to one stage can invalidate assumptions an earlier stage
// already certified.
type Pipeline struct {
	invoker      domain.Invoker
	stageTimeout time.Duration
	logger       *zap.Logger
	metrics      domain.Metrics
}

// NewPipeline wires the six stages. stageTimeout bounds each stage as a
// whole; a non-positive value falls back to the default. Stage 5
// additionally bounds each individual call through the invoker's own
// timeout.
func NewPipeline(invoker domain.Invoker, stageTimeout time.Duration, logger *zap.Logger, metrics domain.Metrics) *Pipeline {
	if invoker == nil {
		panic("validate.Pipeline requires an invoker")
	}
	if stageTimeout <= 0 {
		stageTimeout = time.Duration(domain.DefaultStageTimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		invoker:      invoker,
		stageTimeout: stageTimeout,
		logger:       logger.Named("validate"),
		metrics:      metrics,
	}
}

// run carries the intermediate products stages hand to their
// successors within a single pipeline execution.
type run struct {
	tool domain.ToolDescriptor
	env  domain.EnvironmentDescriptor

	live    domain.LiveTool
	cases   []domain.TestCase
	outputs map[string]string
}

// Run executes the pipeline and returns the immutable report. The
// returned report always contains one StageResult per executed stage,
// in order.
func (p *Pipeline) Run(ctx context.Context, tool domain.ToolDescriptor, env domain.EnvironmentDescriptor) domain.ValidationReport {
	started := time.Now()
	report := domain.ValidationReport{
		ToolName:  tool.Name,
		Version:   tool.Version,
		CreatedAt: started.UTC(),
	}
	state := &run{
		tool:    tool,
		env:     env,
		outputs: make(map[string]string),
	}

	stages := []struct {
		stage domain.Stage
		fn    func(context.Context, *run) domain.StageResult
	}{
		{domain.StageFormatCheck, p.checkFormat},
		{domain.StageDescriptionCheck, p.checkDescription},
		{domain.StageSchemaRetrieval, p.retrieveSchema},
		{domain.StageCaseConstruction, p.constructCases},
		{domain.StageAvailability, p.validateAvailability},
		{domain.StageConsistency, p.checkConsistency},
	}

	passed := true
	for _, entry := range stages {
		stageStarted := time.Now()
		stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		result := entry.fn(stageCtx, state)
		cancel()
		result.Stage = entry.stage
		result.Duration = time.Since(stageStarted)
		report.Stages = append(report.Stages, result)
		p.observeStage(entry.stage, result.Outcome, result.Duration)

		if result.Outcome == domain.StageOutcomeFail {
			passed = false
			p.logger.Info("stage failed",
				zap.String("tool", tool.Name),
				zap.Int("version", tool.Version),
				zap.String("stage", string(entry.stage)),
				zap.String("code", string(result.Code)),
				zap.String("detail", result.Detail),
			)
			break
		}
		p.logger.Debug("stage passed",
			zap.String("tool", tool.Name),
			zap.Int("version", tool.Version),
			zap.String("stage", string(entry.stage)),
		)
	}

	report.Passed = passed && len(report.Stages) == len(stages)
	if p.metrics != nil {
		p.metrics.ObservePipelineRun(tool.Name, report.Passed, time.Since(started))
	}
	return report
}

func (p *Pipeline) observeStage(stage domain.Stage, outcome domain.StageOutcome, duration time.Duration) {
	if p.metrics == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	p.metrics.ObserveStage(stage, outcome, duration)
}

func pass() domain.StageResult {
	return domain.StageResult{Outcome: domain.StageOutcomePass}
}

func fail(code domain.ErrorCode, detail string, params []string) domain.StageResult {
	return domain.StageResult{
		Outcome: domain.StageOutcomeFail,
		Code:    code,
		Detail:  detail,
		Params:  params,
	}
}
