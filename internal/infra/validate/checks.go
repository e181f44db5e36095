package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"foundry/internal/domain"
)

var parameterTypes = map[string]struct{}{
	"string":  {},
	"integer": {},
	"number":  {},
	"boolean": {},
	"array":   {},
	"object":  {},
}

var placeholderMarkers = []string{
	"todo",
	"tbd",
	"fixme",
	"placeholder",
	"lorem ipsum",
	"description here",
	"<insert",
}

// checkFormat is stage 1: every declared parameter needs a name, a
// known type, and an explicit required/optional flag.
func (p *Pipeline) checkFormat(_ context.Context, state *run) domain.StageResult {
	var offending []string
	var problems []string
	seen := make(map[string]bool)

	for index, param := range state.tool.Parameters {
		label := param.Name
		if label == "" {
			label = fmt.Sprintf("#%d", index)
		}
		var local []string
		switch {
		case strings.TrimSpace(param.Name) == "":
			local = append(local, fmt.Sprintf("parameter %s has no name", label))
		case seen[param.Name]:
			local = append(local, fmt.Sprintf("parameter %s is declared twice", label))
		}
		seen[param.Name] = true

		if strings.TrimSpace(param.Type) == "" {
			local = append(local, fmt.Sprintf("parameter %s has no type", label))
		} else if _, ok := parameterTypes[param.Type]; !ok {
			local = append(local, fmt.Sprintf("parameter %s has unknown type %q", label, param.Type))
		}
		if param.Required == nil {
			local = append(local, fmt.Sprintf("parameter %s has no required/optional flag", label))
		}
		if len(local) > 0 {
			problems = append(problems, local...)
			offending = appendOnce(offending, label)
		}
	}

	if len(problems) > 0 {
		return fail(domain.CodeSchemaMalformed, strings.Join(problems, "; "), offending)
	}
	return pass()
}

// checkDescription is stage 2: the description must exist, clear the
// minimum length, mention every declared parameter, and carry no
// placeholder text.
func (p *Pipeline) checkDescription(_ context.Context, state *run) domain.StageResult {
	description := strings.TrimSpace(state.tool.Description)
	if description == "" {
		return fail(domain.CodeDescriptionInadequate, "description is missing or empty", nil)
	}
	if len(description) < domain.DefaultMinDescriptionLength {
		return fail(domain.CodeDescriptionInadequate,
			fmt.Sprintf("description is too short to reflect the tool's behavior (%d chars)", len(description)), nil)
	}

	lowered := strings.ToLower(description)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lowered, marker) {
			return fail(domain.CodeDescriptionInadequate,
				fmt.Sprintf("description contains placeholder text %q", marker), nil)
		}
	}

	var unmentioned []string
	for _, param := range state.tool.Parameters {
		if param.Name == "" {
			continue
		}
		if !strings.Contains(lowered, strings.ToLower(param.Name)) {
			unmentioned = append(unmentioned, param.Name)
		}
	}
	if len(unmentioned) > 0 {
		sort.Strings(unmentioned)
		return fail(domain.CodeDescriptionInadequate,
			fmt.Sprintf("description does not reference declared parameters: %s", strings.Join(unmentioned, ", ")),
			unmentioned)
	}
	return pass()
}

// checkConsistency is stage 6: the observed outputs must not contradict
// what the description claims the tool returns. The claims are read the
// same shallow way the description check reads them; behavioral
// interpretation beyond return shape belongs to the reasoning
// collaborator.
func (p *Pipeline) checkConsistency(_ context.Context, state *run) domain.StageResult {
	description := strings.ToLower(state.tool.Description)
	claimsText := containsAny(description,
		"formatted string", "human-readable", "readable string", "plain text", "text summary", "formatted text")
	claimsStructured := containsAny(description,
		"json", "structured data", "structured output", "returns a list", "returns an object", "array of")

	var observed []string
	for _, testCase := range state.cases {
		if testCase.ExpectError {
			continue
		}
		if output, ok := state.outputs[testCase.Name]; ok {
			observed = append(observed, output)
		}
	}
	if len(observed) == 0 {
		// Nothing usable to cross-reference; stage 5 already proved the
		// error cases behave.
		return pass()
	}

	structuredCount := 0
	for _, output := range observed {
		if looksStructured(output) {
			structuredCount++
		}
	}

	if claimsText && !claimsStructured && structuredCount == len(observed) {
		return fail(domain.CodeDescriptionMismatch,
			"description claims a textual result but every observed output is structured data with no textual rendering", nil)
	}
	if claimsStructured && !claimsText && structuredCount == 0 {
		return fail(domain.CodeDescriptionMismatch,
			"description claims structured output but observed outputs are plain text", nil)
	}
	return pass()
}

func looksStructured(output string) bool {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return false
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return false
	}
	var decoded any
	return json.Unmarshal([]byte(trimmed), &decoded) == nil
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func appendOnce(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
