package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"foundry/internal/domain"
)

// StdioInvoker starts a candidate as an MCP stdio server inside its
// environment for the duration of a single request. Every call gets a
// fresh process and session, so calls are independently repeatable and
// a hung candidate cannot poison later ones.
type StdioInvoker struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewStdioInvoker(timeout time.Duration, logger *zap.Logger) *StdioInvoker {
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultInvokeTimeoutSeconds) * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioInvoker{timeout: timeout, logger: logger.Named("invoke")}
}

func (i *StdioInvoker) LiveSchema(ctx context.Context, tool domain.ToolDescriptor, env domain.EnvironmentDescriptor) (domain.LiveTool, error) {
	const op = "invoke.LiveSchema"
	var live domain.LiveTool
	err := i.withSession(ctx, tool, env, func(ctx context.Context, session *mcp.ClientSession) error {
		listed, err := session.ListTools(ctx, nil)
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		if len(listed.Tools) == 0 {
			return errors.New("candidate exposes no tools")
		}
		first := listed.Tools[0]
		params, err := schemaParameters(first.InputSchema)
		if err != nil {
			return fmt.Errorf("input schema of %s: %w", first.Name, err)
		}
		live = domain.LiveTool{
			FunctionName: first.Name,
			Description:  first.Description,
			Parameters:   params,
		}
		return nil
	})
	if err != nil {
		return domain.LiveTool{}, domain.Wrap(domain.CodeAvailabilityFailure, op, err)
	}
	return live, nil
}

func (i *StdioInvoker) Call(ctx context.Context, tool domain.ToolDescriptor, env domain.EnvironmentDescriptor, params map[string]any) (string, error) {
	const op = "invoke.Call"
	var output string
	err := i.withSession(ctx, tool, env, func(ctx context.Context, session *mcp.ClientSession) error {
		listed, err := session.ListTools(ctx, nil)
		if err != nil {
			return fmt.Errorf("list tools: %w", err)
		}
		if len(listed.Tools) == 0 {
			return errors.New("candidate exposes no tools")
		}
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      listed.Tools[0].Name,
			Arguments: params,
		})
		if err != nil {
			return fmt.Errorf("call tool: %w", err)
		}
		text := contentText(result.Content)
		if result.IsError {
			return fmt.Errorf("tool reported error: %s", text)
		}
		output = text
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.E(domain.CodeAvailabilityTimeout, op,
				fmt.Sprintf("invocation exceeded %s", i.timeout), err)
		}
		return "", domain.Wrap(domain.CodeAvailabilityFailure, op, err)
	}
	return output, nil
}

func (i *StdioInvoker) withSession(ctx context.Context, tool domain.ToolDescriptor, env domain.EnvironmentDescriptor, fn func(context.Context, *mcp.ClientSession) error) error {
	if strings.TrimSpace(env.Interpreter) == "" {
		return errors.New("environment has no interpreter")
	}
	if strings.TrimSpace(tool.ArtifactLocation) == "" {
		return errors.New("tool has no artifact location")
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, env.Interpreter, tool.ArtifactLocation)
	cmd.Env = os.Environ()

	started := time.Now()
	client := mcp.NewClient(&mcp.Implementation{Name: "foundry", Version: "dev"}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		i.logger.Warn("candidate connect failed",
			zap.String("tool", tool.Name),
			zap.Int("version", tool.Version),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return fmt.Errorf("connect candidate: %w", err)
	}
	defer func() {
		_ = session.Close()
	}()

	return fn(ctx, session)
}

// schemaParameters normalizes an MCP inputSchema into the declared
// parameter shape. The SDK surfaces the schema as a wire-shaped any, so
// it is decoded through JSON first. A missing required list means every
// parameter is optional, matching how servers commonly omit it.
func schemaParameters(input any) ([]domain.Parameter, error) {
	schema, err := decodeInputSchema(input)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	params := make([]domain.Parameter, 0, len(schema.Properties))
	for name, prop := range schema.Properties {
		flag := required[name]
		param := domain.Parameter{
			Name:     name,
			Required: &flag,
		}
		if prop != nil {
			param.Type = prop.Type
			param.Description = prop.Description
		}
		params = append(params, param)
	}
	sort.Slice(params, func(i, j int) bool {
		return params[i].Name < params[j].Name
	})
	return params, nil
}

func decodeInputSchema(input any) (*jsonschema.Schema, error) {
	switch value := input.(type) {
	case nil:
		return nil, nil
	case *jsonschema.Schema:
		return value, nil
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode input schema: %w", err)
	}
	schema := new(jsonschema.Schema)
	if err := json.Unmarshal(encoded, schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return schema, nil
}

func contentText(contents []mcp.Content) string {
	var parts []string
	for _, content := range contents {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
