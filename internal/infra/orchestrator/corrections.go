package orchestrator

import (
	"fmt"
	"strings"

	"foundry/internal/domain"
)

// suggestCorrections translates a failing stage's diagnostic into a
// correction request from the closed set the fix manager accepts. The
// translation is mechanical; the controller carries no free-form
// reasoning, so diagnostics with no mechanical fix surface
// UNSUPPORTED_CORRECTION and abort this tool's cycle.
func suggestCorrections(tool domain.ToolDescriptor, failing domain.StageResult) ([]domain.Correction, error) {
	const op = "orchestrator.suggestCorrections"

	switch failing.Code {
	case domain.CodeSchemaMalformed, domain.CodeSchemaDrift:
		params := repairedParameters(tool, failing.Params)
		if len(params) == 0 {
			return nil, domain.E(domain.CodeUnsupportedCorrection, op,
				fmt.Sprintf("stage %s named no repairable parameters", failing.Stage), nil)
		}
		return []domain.Correction{{
			Kind:       domain.CorrectionParameterAddition,
			Parameters: params,
		}}, nil

	case domain.CodeDescriptionInadequate:
		return []domain.Correction{{
			Kind:        domain.CorrectionDescriptionRewrite,
			Description: generatedDescription(tool, false),
		}}, nil

	case domain.CodeDescriptionMismatch:
		// The mismatch detail says which direction reality went.
		structured := strings.Contains(failing.Detail, "structured data")
		return []domain.Correction{{
			Kind:        domain.CorrectionDescriptionRewrite,
			Description: generatedDescription(tool, structured),
		}}, nil

	case domain.CodeAvailabilityFailure, domain.CodeAvailabilityTimeout:
		// The one availability defect the closed set can reach: the
		// served function does not answer to the registered name.
		return []domain.Correction{{
			Kind:    domain.CorrectionFunctionRename,
			NewName: tool.Name,
		}}, nil

	default:
		return nil, domain.E(domain.CodeUnsupportedCorrection, op,
			fmt.Sprintf("no correction in the supported set addresses %s from stage %s", failing.Code, failing.Stage), nil)
	}
}

// repairedParameters rebuilds the named parameters with every field the
// format check demands filled in. Unknown names become fresh optional
// string parameters.
func repairedParameters(tool domain.ToolDescriptor, names []string) []domain.Parameter {
	declared := make(map[string]domain.Parameter, len(tool.Parameters))
	for _, param := range tool.Parameters {
		declared[param.Name] = param
	}

	out := make([]domain.Parameter, 0, len(names))
	for _, name := range names {
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		param, ok := declared[name]
		if !ok {
			param = domain.Parameter{Name: name}
		}
		if strings.TrimSpace(param.Type) == "" {
			param.Type = "string"
		}
		if param.Required == nil {
			optional := false
			param.Required = &optional
		}
		out = append(out, param)
	}
	return out
}

// generatedDescription derives a description mechanically from the
// declared schema: it names the tool, references every parameter, and
// states the observed return shape.
func generatedDescription(tool domain.ToolDescriptor, structured bool) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "The %s tool executes its task", tool.Name)
	if len(tool.Parameters) > 0 {
		parts := make([]string, 0, len(tool.Parameters))
		for _, param := range tool.Parameters {
			parameterType := param.Type
			if parameterType == "" {
				parameterType = "string"
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", param.Name, parameterType))
		}
		fmt.Fprintf(&builder, " using the parameters %s", strings.Join(parts, ", "))
	}
	if structured {
		builder.WriteString(". Returns structured data encoded as JSON.")
	} else {
		builder.WriteString(". Returns a formatted string describing the result.")
	}
	return builder.String()
}
