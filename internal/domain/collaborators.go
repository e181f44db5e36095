package domain

import "context"

// LiveTool is the schema a running candidate reports about itself,
// normalized into the declared-parameter shape so the pipeline can diff
// the two directly.
type LiveTool struct {
	FunctionName string      `json:"functionName"`
	Description  string      `json:"description"`
	Parameters   []Parameter `json:"parameters"`
}

// Invoker is the tool invocation boundary. Implementations start the
// candidate in its environment, talk to it, and tear it down; calls are
// independently repeatable.
type Invoker interface {
	// LiveSchema obtains the candidate's self-reported schema.
	LiveSchema(ctx context.Context, tool ToolDescriptor, env EnvironmentDescriptor) (LiveTool, error)
	// Call executes the candidate with the given parameters and returns
	// its textual output.
	Call(ctx context.Context, tool ToolDescriptor, env EnvironmentDescriptor, params map[string]any) (string, error)
}

// Provisioner prepares execution environments. The engine never
// installs dependencies itself.
type Provisioner interface {
	Provision(ctx context.Context, dependencies []string) (EnvironmentDescriptor, error)
}

// BuildRequest describes the tool the build collaborator should produce.
type BuildRequest struct {
	Name        string
	Requirement string
}

// Builder is the candidate build collaborator. The engine requests
// candidates but does not control how they are produced.
type Builder interface {
	Build(ctx context.Context, req BuildRequest) (Candidate, error)
}
