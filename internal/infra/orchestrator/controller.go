package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foundry/internal/domain"
	"foundry/internal/infra/fixer"
	"foundry/internal/infra/registry"
	"foundry/internal/infra/validate"
)

// State names one controller position in the cycle state machine.
type State string

const (
	StateIdle       State = "idle"
	StateAcquiring  State = "acquiring_candidate"
	StateValidating State = "validating"
	StatePromoting  State = "promoting"
	StateFixing     State = "fixing"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

// Request asks the controller for a usable tool. When Candidate is set
// the caller already holds a freshly built draft; otherwise the
// controller tries reuse first and falls back to the build
// collaborator, when one is wired.
type Request struct {
	Name        string
	Requirement string
	Candidate   *domain.Candidate
}

// Controller drives one tool name through
// acquire → validate → (fix → validate)* → promote. At most one cycle
// per tool name runs at a time; cycles for different names are
// independent.
type Controller struct {
	store        *registry.Store
	pipeline     *validate.Pipeline
	fixes        *fixer.Manager
	builder      domain.Builder
	logger       *zap.Logger
	metrics      domain.Metrics
	maxFixCycles int

	locks  *keyedMutex
	slots  chan struct{}
	active atomic.Int64
}

// NewController wires the cycle state machine. maxParallelCycles bounds
// how many cycles for distinct tool names may run at once; same-name
// runs always serialize on the keyed lock and never hold a slot while
// queued.
func NewController(store *registry.Store, pipeline *validate.Pipeline, fixes *fixer.Manager, builder domain.Builder, maxFixCycles, maxParallelCycles int, logger *zap.Logger, metrics domain.Metrics) *Controller {
	if store == nil || pipeline == nil || fixes == nil {
		panic("orchestrator.Controller requires store, pipeline and fixer")
	}
	if maxFixCycles <= 0 {
		maxFixCycles = domain.DefaultMaxFixCycles
	}
	if maxParallelCycles <= 0 {
		maxParallelCycles = domain.DefaultMaxParallelCycles
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:        store,
		pipeline:     pipeline,
		fixes:        fixes,
		builder:      builder,
		logger:       logger.Named("orchestrator"),
		metrics:      metrics,
		maxFixCycles: maxFixCycles,
		locks:        newKeyedMutex(),
		slots:        make(chan struct{}, maxParallelCycles),
	}
}

// Run executes one full cycle for req and reports the terminal state.
// The error mirrors RunResult.Reason for callers that propagate
// failures programmatically.
func (c *Controller) Run(ctx context.Context, req Request) (domain.RunResult, error) {
	if req.Name == "" {
		result := domain.RunResult{Status: domain.RunStatusFailed, Reason: "tool name is required"}
		return result, domain.E(domain.CodeInvalidArgument, "orchestrator.Run", result.Reason, nil)
	}

	c.locks.Lock(req.Name)
	defer c.locks.Unlock(req.Name)
	if err := c.acquireSlot(ctx); err != nil {
		result := domain.RunResult{Status: domain.RunStatusFailed, ToolName: req.Name, Reason: "cycle canceled"}
		return result, err
	}
	defer c.releaseSlot()
	c.trackActive(1)
	defer c.trackActive(-1)

	runID := uuid.NewString()
	logger := c.logger.With(zap.String("run_id", runID), zap.String("tool", req.Name))
	started := time.Now()

	result, fixCycles, err := c.run(ctx, req, logger)
	if c.metrics != nil {
		c.metrics.ObserveCycle(result.Status, fixCycles, time.Since(started))
	}
	logger.Info("cycle finished",
		zap.String("status", string(result.Status)),
		zap.Int("version", result.Version),
		zap.Int("fix_cycles", fixCycles),
		zap.String("reason", result.Reason),
	)
	return result, err
}

func (c *Controller) run(ctx context.Context, req Request, logger *zap.Logger) (domain.RunResult, int, error) {
	state := StateAcquiring
	logger.Info("state transition", zap.String("state", string(state)))

	current, reused, err := c.acquire(ctx, req)
	if err != nil {
		return c.aborted(req.Name, 0, err), 0, err
	}
	if reused {
		return domain.RunResult{
			Status:   domain.RunStatusSuccess,
			ToolName: current.Name,
			Version:  current.Version,
			Reason:   "reused existing active tool",
		}, 0, nil
	}

	fixCycles := 0
	availabilityRetries := 0

	for {
		state = StateValidating
		logger.Info("state transition", zap.String("state", string(state)), zap.Int("version", current.Version))

		if err := c.store.SetToolStatus(current.Name, current.Version, domain.ToolStatusValidating); err != nil {
			return c.aborted(req.Name, current.Version, err), fixCycles, err
		}
		current.Status = domain.ToolStatusValidating

		env, err := c.store.LookupEnvironment(current.EnvironmentID)
		if err != nil {
			return c.aborted(req.Name, current.Version, err), fixCycles, err
		}

		report := c.pipeline.Run(ctx, current, env)
		if err := c.store.PutReport(report); err != nil {
			// A registry write failure is fatal for this tool's cycle.
			c.demoteToDraft(current, logger)
			return c.aborted(req.Name, current.Version, err), fixCycles, err
		}

		if report.Passed {
			state = StatePromoting
			logger.Info("state transition", zap.String("state", string(state)), zap.Int("version", current.Version))
			promoted, err := c.store.Promote(current.Name, current.Version)
			if err != nil {
				if domain.IsCode(err, domain.CodeNotValidated) {
					// Unreachable after a passing run; registry and pipeline
					// disagree about this version.
					err = domain.E(domain.CodeInternal, "orchestrator.Run",
						fmt.Sprintf("promotion rejected after passing validation for %s version %d", current.Name, current.Version), err)
				}
				return c.aborted(req.Name, current.Version, err), fixCycles, err
			}
			return domain.RunResult{
				Status:   domain.RunStatusSuccess,
				ToolName: promoted.Name,
				Version:  promoted.Version,
			}, fixCycles, nil
		}

		failing, _ := report.FailingStage()

		if ctx.Err() != nil {
			// Interrupted cycle: the version stays an unpromoted draft,
			// which is the last consistent registry state.
			c.demoteToDraft(current, logger)
			err := domain.E(domain.CodeCanceled, "orchestrator.Run", "cycle canceled", ctx.Err())
			return c.aborted(req.Name, current.Version, err), fixCycles, err
		}

		// Availability failures may be environment flake: retry the same
		// version once before treating the defect as structural.
		if isAvailabilityCode(failing.Code) && availabilityRetries == 0 {
			availabilityRetries++
			logger.Info("availability failure, retrying same version",
				zap.Int("version", current.Version),
				zap.String("code", string(failing.Code)),
			)
			continue
		}

		state = StateFixing
		logger.Info("state transition",
			zap.String("state", string(state)),
			zap.Int("version", current.Version),
			zap.String("failing_stage", string(failing.Stage)),
			zap.String("code", string(failing.Code)),
		)

		fixCycles++
		if fixCycles > c.maxFixCycles {
			err := domain.E(domain.CodeFixCyclesExhausted, "orchestrator.Run",
				fmt.Sprintf("unresolvable defect: %d fix cycles did not clear stage %s (%s)", c.maxFixCycles, failing.Stage, failing.Code), nil)
			c.demoteToDraft(current, logger)
			return c.aborted(req.Name, current.Version, err), fixCycles - 1, err
		}

		corrections, err := suggestCorrections(current, failing)
		if err != nil {
			c.demoteToDraft(current, logger)
			return c.aborted(req.Name, current.Version, err), fixCycles, err
		}

		reason := fmt.Sprintf("stage %s failed with %s: %s", failing.Stage, failing.Code, failing.Detail)
		next, err := c.fixes.ApplyFix(current.Name, current.Version, corrections, reason)
		if err != nil {
			c.demoteToDraft(current, logger)
			return c.aborted(req.Name, current.Version, err), fixCycles, err
		}

		// The failed version is retired, never deleted; its artifact
		// stays on disk for post-mortem.
		if err := c.store.SetToolStatus(current.Name, current.Version, domain.ToolStatusDeprecated); err != nil {
			return c.aborted(req.Name, current.Version, err), fixCycles, err
		}

		current = next
		availabilityRetries = 0
	}
}

func (c *Controller) acquire(ctx context.Context, req Request) (domain.ToolDescriptor, bool, error) {
	if req.Candidate != nil {
		draft, err := c.store.CreateDraft(*req.Candidate)
		return draft, false, err
	}

	if existing, err := c.store.Get(req.Name); err == nil {
		return existing, true, nil
	} else if !domain.IsCode(err, domain.CodeNotFound) {
		return domain.ToolDescriptor{}, false, err
	}

	if c.builder == nil {
		return domain.ToolDescriptor{}, false, domain.E(domain.CodeNotFound, "orchestrator.acquire",
			fmt.Sprintf("no active tool %s and no build collaborator configured", req.Name), nil)
	}
	candidate, err := c.builder.Build(ctx, domain.BuildRequest{Name: req.Name, Requirement: req.Requirement})
	if err != nil {
		return domain.ToolDescriptor{}, false, domain.Wrap(domain.CodeInternal, "orchestrator.acquire", err)
	}
	draft, err := c.store.CreateDraft(candidate)
	return draft, false, err
}

func (c *Controller) demoteToDraft(tool domain.ToolDescriptor, logger *zap.Logger) {
	if err := c.store.SetToolStatus(tool.Name, tool.Version, domain.ToolStatusDraft); err != nil {
		logger.Warn("could not return tool to draft",
			zap.Int("version", tool.Version),
			zap.Error(err),
		)
	}
}

func (c *Controller) aborted(name string, version int, err error) domain.RunResult {
	return domain.RunResult{
		Status:   domain.RunStatusFailed,
		ToolName: name,
		Version:  version,
		Reason:   err.Error(),
	}
}

// acquireSlot takes one of the parallel-cycle slots. A free slot is
// taken even under an already-canceled context; the per-stage checks
// inside the cycle handle cancellation from there.
func (c *Controller) acquireSlot(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	default:
	}
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.E(domain.CodeCanceled, "orchestrator.Run", "cycle canceled before start", ctx.Err())
	}
}

func (c *Controller) releaseSlot() {
	<-c.slots
}

func (c *Controller) trackActive(delta int64) {
	count := c.active.Add(delta)
	if c.metrics != nil {
		c.metrics.SetActiveCycles(int(count))
	}
}

func isAvailabilityCode(code domain.ErrorCode) bool {
	return code == domain.CodeAvailabilityFailure || code == domain.CodeAvailabilityTimeout
}
