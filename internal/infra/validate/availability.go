package validate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"foundry/internal/domain"
)

var crashMarkers = []string{
	"traceback (most recent call last)",
	"panic:",
	"segmentation fault",
}

// validateAvailability is stage 5: execute every constructed case
// against the candidate through its invocation interface. This is the
// only stage that runs an external, possibly hanging process; the
// invoker enforces the timeout and a timeout is a stage failure, never
// an outstanding call.
func (p *Pipeline) validateAvailability(ctx context.Context, state *run) domain.StageResult {
	var failing []string
	var problems []string

	for _, testCase := range state.cases {
		output, err := p.invoker.Call(ctx, state.tool, state.env, testCase.Input)
		if err != nil && domain.IsCode(err, domain.CodeAvailabilityTimeout) {
			return fail(domain.CodeAvailabilityTimeout,
				fmt.Sprintf("case %s (input %s) timed out: %v", testCase.Name, describeInput(testCase.Input), err),
				[]string{testCase.Name})
		}

		if testCase.ExpectError {
			if err == nil {
				failing = append(failing, testCase.Name)
				problems = append(problems, fmt.Sprintf(
					"case %s: schema-invalid input %s was accepted instead of rejected",
					testCase.Name, describeInput(testCase.Input)))
			}
			continue
		}

		if err != nil {
			failing = append(failing, testCase.Name)
			problems = append(problems, fmt.Sprintf(
				"case %s (input %s) failed: %v", testCase.Name, describeInput(testCase.Input), err))
			continue
		}
		if marker, crashed := crashMarker(output); crashed {
			failing = append(failing, testCase.Name)
			problems = append(problems, fmt.Sprintf(
				"case %s output contains crash marker %q", testCase.Name, marker))
			continue
		}
		if testCase.Kind == domain.CaseKindNormal && strings.TrimSpace(output) == "" {
			failing = append(failing, testCase.Name)
			problems = append(problems, fmt.Sprintf(
				"case %s produced empty output for input %s", testCase.Name, describeInput(testCase.Input)))
			continue
		}

		state.outputs[testCase.Name] = output
	}

	if len(failing) > 0 {
		p.logger.Info("availability cases failed",
			zap.String("tool", state.tool.Name),
			zap.Int("version", state.tool.Version),
			zap.Strings("cases", failing),
		)
		return fail(domain.CodeAvailabilityFailure, strings.Join(problems, "; "), failing)
	}
	return pass()
}

func crashMarker(output string) (string, bool) {
	lowered := strings.ToLower(output)
	for _, marker := range crashMarkers {
		if strings.Contains(lowered, marker) {
			return marker, true
		}
	}
	return "", false
}
