package validate

import (
	"context"
	"encoding/json"
	"fmt"

	"foundry/internal/domain"
)

// constructCases is stage 4: derive invocation scenarios from the
// retrieved schema. At least a normal case, a boundary case, and,
// where the schema admits invalid inputs, an abnormal case must come
// out, and the scenarios must be genuinely distinct.
func (p *Pipeline) constructCases(_ context.Context, state *run) domain.StageResult {
	params := state.live.Parameters
	resolved, err := declaredSchema(params)
	if err != nil {
		return fail(domain.CodeInsufficientCoverage,
			fmt.Sprintf("retrieved schema cannot be resolved: %v", err), nil)
	}

	var cases []domain.TestCase

	normal := domain.TestCase{
		Name:  "normal",
		Kind:  domain.CaseKindNormal,
		Input: make(map[string]any, len(params)),
	}
	for _, param := range params {
		normal.Input[param.Name] = typicalValue(param.Type)
	}
	cases = append(cases, normal)

	boundary := domain.TestCase{
		Name:  "boundary",
		Kind:  domain.CaseKindBoundary,
		Input: make(map[string]any),
	}
	for _, param := range params {
		if param.Required != nil && *param.Required {
			boundary.Input[param.Name] = boundaryValue(param.Type)
		}
	}
	cases = append(cases, boundary)

	if abnormal, ok := abnormalCase(params); ok {
		// Only keep it if the schema really rejects it; otherwise the
		// schema admits no invalid values and the case proves nothing.
		if resolved.Validate(abnormal.Input) != nil {
			cases = append(cases, abnormal)
		}
	}

	distinct := distinctCases(cases)
	if len(distinct) < 3 {
		return fail(domain.CodeInsufficientCoverage,
			fmt.Sprintf("only %d distinct scenario(s) can be derived from the schema", len(distinct)),
			caseNames(distinct))
	}

	// Well-formed cases must satisfy the schema the candidate serves.
	for _, testCase := range distinct {
		if testCase.Kind == domain.CaseKindAbnormal {
			continue
		}
		if err := resolved.Validate(testCase.Input); err != nil {
			return fail(domain.CodeInsufficientCoverage,
				fmt.Sprintf("generated %s case does not satisfy the retrieved schema: %v", testCase.Name, err),
				[]string{testCase.Name})
		}
	}

	state.cases = distinct
	return pass()
}

func abnormalCase(params []domain.Parameter) (domain.TestCase, bool) {
	abnormal := domain.TestCase{
		Name:        "abnormal",
		Kind:        domain.CaseKindAbnormal,
		Input:       make(map[string]any),
		ExpectError: true,
	}
	for _, param := range params {
		if param.Type != "" {
			// One wrong-typed value; everything else stays typical so the
			// defect under test is isolated.
			abnormal.Input[param.Name] = wrongTypedValue(param.Type)
			for _, other := range params {
				if other.Name != param.Name {
					abnormal.Input[other.Name] = typicalValue(other.Type)
				}
			}
			return abnormal, true
		}
	}
	return domain.TestCase{}, false
}

func typicalValue(parameterType string) any {
	switch parameterType {
	case "string":
		return "sample text"
	case "integer":
		return 7
	case "number":
		return 3.14
	case "boolean":
		return true
	case "array":
		return []any{"sample"}
	case "object":
		return map[string]any{"key": "value"}
	default:
		return "sample"
	}
}

func boundaryValue(parameterType string) any {
	switch parameterType {
	case "string":
		return ""
	case "integer":
		return 0
	case "number":
		return 0.0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return ""
	}
}

func wrongTypedValue(parameterType string) any {
	if parameterType == "integer" || parameterType == "number" {
		return "not a number"
	}
	return 12345
}

func distinctCases(cases []domain.TestCase) []domain.TestCase {
	seen := make(map[string]bool, len(cases))
	var out []domain.TestCase
	for _, testCase := range cases {
		encoded, err := json.Marshal(testCase.Input)
		if err != nil {
			continue
		}
		key := string(encoded)
		if testCase.ExpectError {
			key = "!" + key
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, testCase)
	}
	return out
}

func caseNames(cases []domain.TestCase) []string {
	names := make([]string, 0, len(cases))
	for _, testCase := range cases {
		names = append(names, testCase.Name)
	}
	return names
}

// describeInput renders a case input for diagnostics.
func describeInput(input map[string]any) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(encoded)
}
