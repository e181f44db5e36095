package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"foundry/internal/domain"
	"foundry/internal/infra/catalog"
)

type cliOptions struct {
	configPath string
	jsonOutput bool
	verbose    bool
	logger     *zap.Logger
	config     domain.RuntimeConfig
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{
		logger: zap.NewNop(),
	}

	root := &cobra.Command{
		Use:   "foundryd",
		Short: "Tool lifecycle orchestration engine for generated MCP tools",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			applyRootFlagBindings(cmd, &opts)

			cfg := zap.NewProductionConfig()
			if opts.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return err
			}
			opts.logger = logger

			loaded, err := catalog.NewLoader(opts.logger).Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.config = loaded
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML configuration (defaults apply when omitted)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(&opts),
		newToolsCmd(&opts),
		newHistoryCmd(&opts),
		newReportCmd(&opts),
		newFixesCmd(&opts),
		newEnvsCmd(&opts),
	)

	return root
}

func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
			opts.configPath, _ = flags.GetString("config")
		case "json":
			opts.jsonOutput, _ = flags.GetBool("json")
		case "verbose":
			opts.verbose, _ = flags.GetBool("verbose")
		}
	})
}
