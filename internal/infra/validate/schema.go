package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/jsonschema-go/jsonschema"

	"foundry/internal/domain"
)

// retrieveSchema is stage 3: ask the running candidate for its live
// schema and diff it against the declaration stage 1 certified. The two
// must agree on parameter names, types, and required flags; a candidate
// whose reality drifted from its declaration cannot be trusted by
// either side of the contract.
func (p *Pipeline) retrieveSchema(ctx context.Context, state *run) domain.StageResult {
	live, err := p.invoker.LiveSchema(ctx, state.tool, state.env)
	if err != nil {
		return fail(domain.CodeSchemaDrift,
			fmt.Sprintf("could not retrieve live schema: %v", err), nil)
	}
	state.live = live

	declared := parameterIndex(state.tool.Parameters)
	actual := parameterIndex(live.Parameters)

	var drifted []string
	var problems []string

	for name, declaredParam := range declared {
		liveParam, ok := actual[name]
		if !ok {
			drifted = appendOnce(drifted, name)
			problems = append(problems, fmt.Sprintf("declared parameter %s is missing from the live schema", name))
			continue
		}
		if declaredParam.Type != "" && liveParam.Type != "" && declaredParam.Type != liveParam.Type {
			drifted = appendOnce(drifted, name)
			problems = append(problems, fmt.Sprintf("parameter %s declared as %s but served as %s", name, declaredParam.Type, liveParam.Type))
		}
		if declaredParam.Required != nil && liveParam.Required != nil && *declaredParam.Required != *liveParam.Required {
			drifted = appendOnce(drifted, name)
			problems = append(problems, fmt.Sprintf("parameter %s required flag differs (declared %t, live %t)", name, *declaredParam.Required, *liveParam.Required))
		}
	}
	for name := range actual {
		if _, ok := declared[name]; !ok {
			drifted = appendOnce(drifted, name)
			problems = append(problems, fmt.Sprintf("live schema exposes undeclared parameter %s", name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(drifted)
		diff := cmp.Diff(normalizedParameters(state.tool.Parameters), normalizedParameters(live.Parameters))
		detail := strings.Join(problems, "; ")
		if diff != "" {
			detail = detail + "\n" + diff
		}
		return fail(domain.CodeSchemaDrift, detail, drifted)
	}
	return pass()
}

func parameterIndex(params []domain.Parameter) map[string]domain.Parameter {
	index := make(map[string]domain.Parameter, len(params))
	for _, param := range params {
		if param.Name != "" {
			index[param.Name] = param
		}
	}
	return index
}

// normalizedParameter strips descriptions so cmp.Diff reports only the
// fields drift is judged on.
type normalizedParameter struct {
	Name     string
	Type     string
	Required *bool
}

func normalizedParameters(params []domain.Parameter) []normalizedParameter {
	out := make([]normalizedParameter, 0, len(params))
	for _, param := range params {
		out = append(out, normalizedParameter{
			Name:     param.Name,
			Type:     param.Type,
			Required: param.Required,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// declaredSchema materializes the declared parameters as a resolved
// JSON schema, used to classify generated inputs in stage 4.
func declaredSchema(params []domain.Parameter) (*jsonschema.Resolved, error) {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, param := range params {
		if param.Name == "" {
			continue
		}
		schema.Properties[param.Name] = &jsonschema.Schema{
			Type:        param.Type,
			Description: param.Description,
		}
		if param.Required != nil && *param.Required {
			schema.Required = append(schema.Required, param.Name)
		}
	}
	sort.Strings(schema.Required)
	return schema.Resolve(nil)
}
