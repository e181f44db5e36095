package fixer

import (
	"fmt"
	"regexp"
	"strings"

	"foundry/internal/domain"
)

// The rewrite targets are FastMCP-style server sources: a decorated
// tool function plus a FastMCP("name") server instance. The edits are
// deliberately narrow: inject or replace the decorator description,
// extend the function signature, rename the function or the server.
// Anything beyond that is a job for the build collaborator, not a
// correction.

var (
	toolDecoratorPattern = regexp.MustCompile(`@mcp\.tool\([^)]*\)`)
	decoratorDescPattern = regexp.MustCompile(`description\s*=\s*["'][^"']*["']`)
	funcDefPattern       = regexp.MustCompile(`def\s+(\w+)\s*\(([^)]*)\)(\s*->\s*[\w\[\], ]+)?\s*:`)
	decoratorNamePattern = regexp.MustCompile(`(name\s*=\s*["'])[^"']*(["'])`)
	serverCtorPattern    = regexp.MustCompile(`(FastMCP\s*\(\s*["'])[^"']*(["'])`)
)

func rewriteDescription(source, description string) string {
	escaped := strings.ReplaceAll(description, `"`, `\"`)
	if toolDecoratorPattern.MatchString(source) {
		return toolDecoratorPattern.ReplaceAllStringFunc(source, func(decorator string) string {
			if decoratorDescPattern.MatchString(decorator) {
				return decoratorDescPattern.ReplaceAllString(decorator, fmt.Sprintf(`description="%s"`, escaped))
			}
			if decorator == "@mcp.tool()" {
				return fmt.Sprintf(`@mcp.tool(description="%s")`, escaped)
			}
			return strings.TrimSuffix(decorator, ")") + fmt.Sprintf(`, description="%s")`, escaped)
		})
	}
	// No decorator at all: attach one to the first function definition.
	replaced := false
	return funcDefPattern.ReplaceAllStringFunc(source, func(def string) string {
		if replaced {
			return def
		}
		replaced = true
		return fmt.Sprintf("@mcp.tool(description=\"%s\")\n%s", escaped, def)
	})
}

var pythonTypeByJSONType = map[string]string{
	"string":  "str",
	"integer": "int",
	"number":  "float",
	"boolean": "bool",
	"array":   "list",
	"object":  "dict",
}

func addParameters(source string, parameters []domain.Parameter) string {
	replaced := false
	return funcDefPattern.ReplaceAllStringFunc(source, func(def string) string {
		if replaced {
			return def
		}
		replaced = true
		groups := funcDefPattern.FindStringSubmatch(def)
		name := groups[1]
		existing := strings.TrimSpace(groups[2])
		returns := groups[3]

		// A parameter already in the signature only needed its
		// declaration repaired, not a second argument.
		present := make(map[string]bool)
		for _, arg := range strings.Split(existing, ",") {
			argName := strings.TrimSpace(arg)
			if idx := strings.IndexAny(argName, ":="); idx >= 0 {
				argName = strings.TrimSpace(argName[:idx])
			}
			if argName != "" {
				present[argName] = true
			}
		}

		rendered := make([]string, 0, len(parameters))
		for _, param := range parameters {
			if present[param.Name] {
				continue
			}
			pythonType, ok := pythonTypeByJSONType[param.Type]
			if !ok {
				pythonType = "str"
			}
			rendered = append(rendered, fmt.Sprintf("%s: %s", param.Name, pythonType))
		}
		if len(rendered) == 0 {
			return def
		}

		joined := strings.Join(rendered, ", ")
		if existing != "" {
			joined = existing + ", " + joined
		}
		return fmt.Sprintf("def %s(%s)%s:", name, joined, returns)
	})
}

func renameFunction(source, newName string) string {
	replaced := false
	source = funcDefPattern.ReplaceAllStringFunc(source, func(def string) string {
		if replaced {
			return def
		}
		replaced = true
		groups := funcDefPattern.FindStringSubmatch(def)
		return fmt.Sprintf("def %s(%s)%s:", newName, groups[2], groups[3])
	})
	return decoratorNamePattern.ReplaceAllString(source, fmt.Sprintf(`${1}%s${2}`, newName))
}

func renameServer(source, newName string) string {
	return serverCtorPattern.ReplaceAllString(source, fmt.Sprintf(`${1}%s${2}`, newName))
}
