package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"foundry/internal/domain"
	"foundry/internal/infra/orchestrator"
	"foundry/internal/infra/telemetry"
)

func newRunCmd(opts *cliOptions) *cobra.Command {
	var (
		requirement string
		artifact    string
		toolConfig  string
		envID       string
		description string
		params      []string
	)

	cmd := &cobra.Command{
		Use:   "run <tool-name>",
		Short: "Drive one tool through validation, fixing and promotion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			request := orchestrator.Request{Name: name, Requirement: requirement}
			if artifact != "" {
				if envID == "" {
					return errors.New("--env is required when --artifact is given")
				}
				declared, err := parseParameters(params)
				if err != nil {
					return err
				}
				request.Candidate = &domain.Candidate{
					Name:             name,
					ArtifactLocation: artifact,
					ConfigLocation:   toolConfig,
					EnvironmentID:    envID,
					Description:      description,
					Parameters:       declared,
				}
			} else if len(params) > 0 || description != "" {
				return errors.New("--description and --param require --artifact")
			}

			eng, cleanup, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			if addr := opts.config.Observability.ListenAddress; addr != "" {
				if err := telemetry.StartHTTPServer(ctx, addr, eng.registry, opts.logger); err != nil {
					return err
				}
			}

			result, runErr := eng.controller.Run(ctx, request)
			if err := writeRunResult(result, opts.jsonOutput); err != nil {
				return err
			}
			if runErr != nil {
				return exitWith(1, "")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&requirement, "requirement", "", "natural language requirement for the build collaborator")
	cmd.Flags().StringVar(&artifact, "artifact", "", "path to a freshly produced tool artifact to register as a draft")
	cmd.Flags().StringVar(&toolConfig, "tool-config", "", "path to the artifact's server configuration")
	cmd.Flags().StringVar(&envID, "env", "", "environment ID the artifact runs in")
	cmd.Flags().StringVar(&description, "description", "", "declared tool description")
	cmd.Flags().StringArrayVar(&params, "param", nil, "declared parameter as name:type:required|optional (repeatable)")

	return cmd
}

// parseParameters decodes the name:type:required|optional flag form. The
// third segment may be omitted, which leaves the required flag
// undeclared so the format check can report it.
func parseParameters(specs []string) ([]domain.Parameter, error) {
	out := make([]domain.Parameter, 0, len(specs))
	for _, spec := range specs {
		segments := strings.SplitN(spec, ":", 3)
		if segments[0] == "" {
			return nil, fmt.Errorf("parameter %q: name is required", spec)
		}
		param := domain.Parameter{Name: segments[0]}
		if len(segments) > 1 {
			param.Type = segments[1]
		}
		if len(segments) > 2 {
			switch segments[2] {
			case "required":
				required := true
				param.Required = &required
			case "optional":
				required := false
				param.Required = &required
			default:
				return nil, fmt.Errorf("parameter %q: third segment must be required or optional", spec)
			}
		}
		out = append(out, param)
	}
	return out, nil
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
